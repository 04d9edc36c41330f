// Command workflow-report prints workflow statistics, an agency's pending
// queue and the chat relay backlog as terminal tables.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/pmajay-coordination/internal/application/service"
	"github.com/garyjia/pmajay-coordination/internal/application/workflow"
	"github.com/garyjia/pmajay-coordination/internal/config"
	"github.com/garyjia/pmajay-coordination/internal/container"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	agencyID := flag.String("agency", "", "also print the pending queue of this agency")
	relay := flag.Bool("relay", false, "also print messages waiting for chat relay")
	format := flag.String("format", "table", "output format: table, markdown or csv")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts := reportOptions{AgencyID: *agencyID, Relay: *relay, Format: *format}
	if err := run(ctx, cfg, opts); err != nil {
		fmt.Fprintf(os.Stderr, "workflow-report: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts reportOptions) error {
	logger := zap.NewNop()
	containerCfg := cfg.ToContainerConfig("report")

	dbBundle, err := container.ProvideDatabase(&containerCfg.Database, logger)
	if err != nil {
		return err
	}
	defer dbBundle.Raw.Close()

	repos, err := container.ProvideRepositories(dbBundle.TxManager, logger)
	if err != nil {
		return err
	}

	// Read-only use: the engine never sends from here.
	emitter := service.NewNotificationService(repos.Notification, container.NewLoggerAdapter(logger), false)
	engine := workflow.NewEngine(repos.Workflow, repos.Agency, emitter, dbBundle.TxManager)

	data := reportData{}
	if data.Stats, err = engine.GetStats(ctx); err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	if opts.AgencyID != "" {
		if data.Pending, err = engine.ListPending(ctx, opts.AgencyID); err != nil {
			return fmt.Errorf("list pending for %s: %w", opts.AgencyID, err)
		}
	}
	if opts.Relay {
		if data.Relay, err = repos.Notification.ListPending(ctx, 0); err != nil {
			return fmt.Errorf("list relay backlog: %w", err)
		}
	}

	return render(os.Stdout, data, opts)
}
