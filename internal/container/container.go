package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/pmajay-coordination/internal/application/dispatcher"
	"github.com/garyjia/pmajay-coordination/internal/application/port"
	"github.com/garyjia/pmajay-coordination/internal/application/service"
	"github.com/garyjia/pmajay-coordination/internal/application/workflow"
	"github.com/garyjia/pmajay-coordination/internal/infrastructure/messaging"
	"github.com/garyjia/pmajay-coordination/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/pmajay-coordination/internal/infrastructure/worker"
	httpapi "github.com/garyjia/pmajay-coordination/internal/interfaces/http"
	"github.com/garyjia/pmajay-coordination/pkg/database"
	"go.uber.org/zap"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	rawDB        *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - External
	lark *LarkBundle

	// Application
	dispatcher dispatcher.Dispatcher
	eventBus   *messaging.EventBus
	workflow   workflow.WorkflowEngine
	services   *ServiceBundle

	// Workers
	workers *worker.WorkerManager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Workflow     port.WorkflowRepository
	Agency       port.AgencyRepository
	Notification port.NotificationRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Notification service.NotificationService
	Report       service.ReportService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. Lark chat relay client (when enabled)
// 3. Notification service
// 4. Event dispatcher, event bus, workflow engine and reports
// 5. Workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	// Step 1: Initialize database and repositories
	if err := c.initDatabase(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize database: %w", err))
	}
	c.logger.Info("Database initialized")

	// Step 2: Initialize external clients
	if err := c.initExternalClients(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize external clients: %w", err))
	}
	c.logger.Info("External clients initialized", zap.Bool("chat_relay", c.lark != nil))

	// Step 3: Initialize application services
	if err := c.initServices(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize services: %w", err))
	}
	c.logger.Info("Application services initialized")

	// Step 4: Initialize dispatcher and workflow engine
	if err := c.initDispatcherAndWorkflow(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize dispatcher and workflow: %w", err))
	}
	c.logger.Info("Dispatcher and workflow engine initialized")

	// Step 5: Initialize and start workers
	if err := c.initWorkers(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize workers: %w", err))
	}
	c.logger.Info("Workers initialized and started")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// abort releases whatever Start managed to open before failing.
func (c *Container) abort(err error) error {
	c.logger.Error("Container start failed", zap.Error(err))
	if closeErr := c.teardown(); closeErr != nil {
		c.logger.Error("Cleanup after failed start", zap.Error(closeErr))
	}
	return err
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	err := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}

	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) teardown() error {
	var errs []error

	// Cancel context to signal all goroutines
	if c.cancel != nil {
		c.cancel()
	}

	// Step 1: Stop workers
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
		c.workers = nil
	}

	// Step 2: Close dispatcher so in-flight events reach the bus
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
		c.dispatcher = nil
	}

	// Step 3: Close event bus, ending live subscriptions
	if c.eventBus != nil {
		if err := c.eventBus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close event bus: %w", err))
		} else {
			c.logger.Info("Event bus closed")
		}
		c.eventBus = nil
	}

	// Step 4: Close database
	if c.rawDB != nil {
		if err := c.rawDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
		c.rawDB = nil
	}

	return errors.Join(errs...)
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Ping checks that the database answers. Used by the HTTP health endpoint.
func (c *Container) Ping(ctx context.Context) error {
	c.mu.RLock()
	db := c.rawDB
	c.mu.RUnlock()

	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	return db.PingContext(ctx)
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	if err := c.Ping(ctx); err != nil {
		status.Components["database"] = ComponentHealth{Healthy: false, Message: err.Error()}
		status.Overall = false
	} else {
		status.Components["database"] = ComponentHealth{Healthy: true}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.workers != nil {
		status.Components["workers"] = ComponentHealth{
			Healthy: c.workers.IsRunning(),
			Message: fmt.Sprintf("worker count: %d", c.workers.GetWorkerCount()),
		}
		if !c.workers.IsRunning() {
			status.Overall = false
		}
	} else {
		status.Components["workers"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	}

	if c.dispatcher != nil && c.eventBus != nil {
		status.Components["events"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["events"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	}

	if c.workflow != nil {
		status.Components["workflow"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["workflow"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	}

	return status
}

// initDatabase opens the database, applies migrations and builds repositories.
func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.rawDB = dbBundle.Raw
	c.db = dbBundle.TxManager

	repos, err := ProvideRepositories(c.db, c.logger)
	if err != nil {
		return err
	}

	c.repositories = repos
	return nil
}

// initExternalClients creates the Lark client when the chat relay is enabled.
func (c *Container) initExternalClients() error {
	bundle, err := ProvideLarkClients(&c.config.Lark, c.logger)
	if err != nil {
		return err
	}
	c.lark = bundle
	return nil
}

// initServices creates the notification service. Reports need the engine and
// are created in initDispatcherAndWorkflow.
func (c *Container) initServices() error {
	notifications, err := ProvideNotificationService(c.repositories, c.lark != nil, c.logger)
	if err != nil {
		return err
	}

	c.services = &ServiceBundle{Notification: notifications}
	return nil
}

// initDispatcherAndWorkflow wires the dispatcher, event bus, engine and
// report service.
func (c *Container) initDispatcherAndWorkflow() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	bus, err := ProvideEventBus(&c.config.Events, c.dispatcher, c.logger)
	if err != nil {
		return err
	}
	c.eventBus = bus

	engine, err := ProvideWorkflowEngine(&WorkflowDeps{
		Repos:      c.repositories,
		Emitter:    c.services.Notification,
		TxManager:  c.db,
		Dispatcher: c.dispatcher,
		Config:     &c.config.Workflow,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.workflow = engine

	reports, err := ProvideReportService(engine, c.logger)
	if err != nil {
		return err
	}
	c.services.Report = reports

	return nil
}

// initWorkers creates and starts the background workers.
func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(&WorkerDeps{
		Repos:      c.repositories,
		LarkBundle: c.lark,
		RelayCfg:   &c.config.Relay,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.workers = workers

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// HTTPDependencies returns what the HTTP server routes to.
func (c *Container) HTTPDependencies() httpapi.Dependencies {
	c.mu.RLock()
	defer c.mu.RUnlock()

	deps := httpapi.Dependencies{
		Engine: c.workflow,
		Health: c.Ping,
	}
	if c.services != nil {
		deps.Notifications = c.services.Notification
		deps.Reports = c.services.Report
	}
	if c.repositories != nil {
		deps.Agencies = c.repositories.Agency
	}
	if c.eventBus != nil {
		deps.Events = c.eventBus
	}
	return deps
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// EventBus returns the live event feed.
func (c *Container) EventBus() *messaging.EventBus {
	return c.eventBus
}

// WorkflowEngine returns the workflow engine.
func (c *Container) WorkflowEngine() workflow.WorkflowEngine {
	return c.workflow
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the application Logger interfaces.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Info(msg, fields...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Error(msg, fields...)
}

// dispatcherLoggerAdapter logs dispatcher chatter at debug level; handler
// errors still surface as errors.
type dispatcherLoggerAdapter struct {
	logger *zap.Logger
}

func (a *dispatcherLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Debug(msg, fields...)
}

func (a *dispatcherLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Error(msg, fields...)
}

// NewLoggerAdapter exposes the zap adapter to the entrypoints that build the
// HTTP server.
func NewLoggerAdapter(logger *zap.Logger) httpapi.Logger {
	return &zapLoggerAdapter{logger: logger}
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
