// Package container provides dependency injection and lifecycle management
// for the coordination service.
package container

import (
	"fmt"

	"github.com/garyjia/pmajay-coordination/internal/application/dispatcher"
	"github.com/garyjia/pmajay-coordination/internal/application/port"
	"github.com/garyjia/pmajay-coordination/internal/application/service"
	"github.com/garyjia/pmajay-coordination/internal/application/workflow"
	infraLark "github.com/garyjia/pmajay-coordination/internal/infrastructure/external/lark"
	"github.com/garyjia/pmajay-coordination/internal/infrastructure/messaging"
	"github.com/garyjia/pmajay-coordination/internal/infrastructure/persistence/repository"
	"github.com/garyjia/pmajay-coordination/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/pmajay-coordination/internal/infrastructure/worker"
	"github.com/garyjia/pmajay-coordination/pkg/database"
	"go.uber.org/zap"
)

// eventBusHandlerName identifies the dispatcher subscription that feeds the bus
const eventBusHandlerName = "event-bus"

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Raw       *database.DB
	TxManager *sqlite.DB
}

// LarkBundle holds the chat relay client. Nil when the relay is disabled.
type LarkBundle struct {
	Client    *infraLark.Client
	Messenger port.ChatRelay
}

// ProvideDatabase opens the SQLite store and applies pending migrations.
// The embedded schema is used unless MigrationsDir is set.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(db, logger)
	if cfg.MigrationsDir != "" {
		err = migrator.RunMigrations(cfg.MigrationsDir)
	} else {
		err = migrator.Migrate()
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Raw:       db,
		TxManager: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories sharing one transaction manager.
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Workflow:     repository.NewWorkflowRepository(db, logger),
		Agency:       repository.NewAgencyRepository(db, logger),
		Notification: repository.NewNotificationRepository(db, logger),
	}, nil
}

// ProvideLarkClients creates the Lark client and messenger.
// Returns nil, nil when the relay is disabled.
func ProvideLarkClients(cfg *LarkConfig, logger *zap.Logger) (*LarkBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("lark config is required")
	}
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.AppID == "" || cfg.AppSecret == "" {
		return nil, fmt.Errorf("lark app_id and app_secret are required when enabled")
	}

	client := infraLark.NewClient(infraLark.Config{
		AppID:      cfg.AppID,
		AppSecret:  cfg.AppSecret,
		BaseURL:    cfg.BaseURL,
		APITimeout: cfg.APITimeout,
	}, logger)

	return &LarkBundle{
		Client:    client,
		Messenger: infraLark.NewMessenger(client, logger),
	}, nil
}

// ProvideNotificationService creates the notification emitter. Messages are
// queued for relay only when a chat relay exists.
func ProvideNotificationService(repos *RepositoryBundle, relayEnabled bool, logger *zap.Logger) (service.NotificationService, error) {
	if repos == nil || repos.Notification == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	return service.NewNotificationService(repos.Notification, &zapLoggerAdapter{logger: logger}, relayEnabled), nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&dispatcherLoggerAdapter{logger: logger}),
	), nil
}

// ProvideEventBus creates the watermill event bus and subscribes it to every
// dispatched event.
func ProvideEventBus(cfg *EventsConfig, disp dispatcher.Dispatcher, logger *zap.Logger) (*messaging.EventBus, error) {
	if cfg == nil {
		return nil, fmt.Errorf("events config is required")
	}
	if disp == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	bus := messaging.NewEventBus(messaging.Config{
		Topic:  cfg.Topic,
		Buffer: cfg.Buffer,
	}, logger)
	disp.SubscribeNamed(dispatcher.AnyType, eventBusHandlerName, bus.Publish)

	return bus, nil
}

// WorkflowDeps holds dependencies required for creating the workflow engine.
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	Emitter    port.NotificationEmitter
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Config     *WorkflowConfig
	Logger     *zap.Logger
}

// ProvideWorkflowEngine creates the workflow engine.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.WorkflowEngine, error) {
	if deps == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Emitter == nil {
		return nil, fmt.Errorf("notification emitter is required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("workflow config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := []workflow.EngineOption{
		workflow.WithLogger(&zapLoggerAdapter{logger: deps.Logger}),
		workflow.WithNotifyTimeout(deps.Config.NotifyTimeout),
		workflow.WithDirectoryTimeout(deps.Config.DirectoryTimeout),
		workflow.WithExecutingAgencyLimit(deps.Config.ExecutingAgencyLimit),
	}
	if deps.Dispatcher != nil {
		opts = append(opts, workflow.WithDispatcher(deps.Dispatcher))
	}

	return workflow.NewEngine(
		deps.Repos.Workflow,
		deps.Repos.Agency,
		deps.Emitter,
		deps.TxManager,
		opts...,
	), nil
}

// ProvideReportService creates the spreadsheet report service.
func ProvideReportService(query service.WorkflowQuery, logger *zap.Logger) (service.ReportService, error) {
	if query == nil {
		return nil, fmt.Errorf("workflow query is required")
	}
	return service.NewReportService(query, &zapLoggerAdapter{logger: logger}), nil
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Repos      *RepositoryBundle
	LarkBundle *LarkBundle
	RelayCfg   *RelayConfig
	Logger     *zap.Logger
}

// ProvideWorkers creates the worker manager and registers the relay worker
// when a chat relay is configured.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.RelayCfg == nil {
		return nil, fmt.Errorf("relay config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	if deps.LarkBundle != nil {
		relayCfg := worker.RelayWorkerConfig{
			PollInterval: deps.RelayCfg.PollInterval,
			BatchSize:    deps.RelayCfg.BatchSize,
			MaxAttempts:  deps.RelayCfg.MaxAttempts,
		}
		manager.Register(worker.NewRelayWorker(
			relayCfg,
			deps.Repos.Notification,
			deps.Repos.Agency,
			deps.LarkBundle.Messenger,
			deps.Logger,
		))
	}

	return manager, nil
}
