package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"toplist-tracker-go/internal/aggregate"
	"toplist-tracker-go/internal/config"
	"toplist-tracker-go/internal/database"
	"toplist-tracker-go/internal/extract"
	"toplist-tracker-go/internal/logger"
	"toplist-tracker-go/internal/navigator"
	"toplist-tracker-go/internal/notify"
	"toplist-tracker-go/internal/parser"
	"toplist-tracker-go/internal/report"
	"toplist-tracker-go/internal/scheduler"
	"toplist-tracker-go/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configDir string

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "tracker",
		Short: "Top-list disclosure scraper and trader statistics pipeline",
		Long: `Harvests the daily top-list disclosures of listed stocks, stores them with their
buy and sell trader desks, and recomputes per-trader statistics over a rolling window.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config", "./configs", "directory containing config.yml")

	root.AddCommand(newCrawlCommand(), newAggregateCommand(), newScheduleCommand())
	return root
}

// app holds the components shared by the subcommands.
type app struct {
	cfg       config.Config
	log       *zap.Logger
	scheduler *scheduler.Scheduler
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}

	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		return nil, err
	}
	log.Info("Configuration loaded")

	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Database connection successful and schema migrated.", zap.String("driver", cfg.Database.Driver))

	st := store.New(db)
	venues := parser.NewPrefixPolicy(cfg.Venue.Prefixes, cfg.Venue.Fallback)
	orchestrator := extract.NewOrchestrator(log, st,
		navigator.NewChromeFactory(navigator.OptionsFromConfig(&cfg.Crawler), log),
		venues,
		extract.Options{
			ListURL:       cfg.Crawler.ListURL,
			Dedupe:        cfg.Crawler.Dedupe,
			RowsPerSecond: cfg.Crawler.RowsPerSecond,
		})
	engine := aggregate.NewEngine(log, st, cfg.Aggregation.Workers)

	sched, err := scheduler.New(log, orchestrator, engine, notify.New(&cfg.Notify, log), &cfg.Schedule, cfg.Aggregation.WindowDays)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, scheduler: sched}, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(log *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigchan:
			log.Info("Shutdown signal received, gracefully shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func printReport(cmd *cobra.Command, rep *report.RunReport) {
	if rep == nil {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s run %s: %s (processed=%d skipped=%d filtered=%d duplicates=%d, %s)\n",
		rep.Kind, rep.ID, rep.Status, rep.Processed, rep.Skipped, rep.Filtered, rep.Duplicates, rep.Duration())
}

// runError turns a report into the command's exit status. Partial runs succeed.
func runError(rep *report.RunReport, err error) error {
	if rep != nil && rep.Status != report.StatusFailed {
		return nil
	}
	if err == nil {
		return fmt.Errorf("run failed")
	}
	return err
}
