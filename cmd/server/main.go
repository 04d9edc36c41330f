package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/garyjia/pmajay-coordination/internal/config"
	"github.com/garyjia/pmajay-coordination/internal/container"
	httpapi "github.com/garyjia/pmajay-coordination/internal/interfaces/http"
	"github.com/garyjia/pmajay-coordination/pkg/utils"
	"go.uber.org/zap"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    "pmajay-coordination",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Server exited successfully")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting PM-AJAY coordination service",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("chat_relay", cfg.Lark.Enabled))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	containerCfg := cfg.ToContainerConfig(version)
	app, err := container.NewContainer(containerCfg, logger)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("start container: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Container shutdown failed", zap.Error(err))
		}
	}()

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:              containerCfg.Server.Host,
		Port:              containerCfg.Server.Port,
		ReadTimeout:       containerCfg.Server.ReadTimeout,
		HeartbeatInterval: containerCfg.Server.HeartbeatInterval,
		Version:           version,
	}, app.HTTPDependencies(), container.NewLoggerAdapter(logger))

	// Start blocks until a signal arrives, then drains open requests.
	return server.Start(ctx)
}
