package main

import (
	"time"

	"toplist-tracker-go/internal/aggregate"
	"toplist-tracker-go/internal/parser"
	"toplist-tracker-go/internal/report"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCrawlCommand() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one extraction pass over the top-list page",
		Long: `Walks every row of the top-list page, opens its trader detail and stores the disclosure.
With --date only rows of that trading day are stored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var forDate time.Time
			if date != "" {
				var err error
				if forDate, err = time.Parse(parser.DateLayout, date); err != nil {
					return err
				}
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.log.Sync()

			ctx, cancel := signalContext(a.log)
			defer cancel()

			rep, err := a.scheduler.RunExtraction(ctx, forDate)
			printReport(cmd, rep)
			return runError(rep, err)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "trading day to keep (YYYY-MM-DD); empty keeps every row")
	return cmd
}

func newAggregateCommand() *cobra.Command {
	var windowDays int
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Recompute the trader summaries over the trailing window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.log.Sync()

			if !cmd.Flags().Changed("window-days") {
				windowDays = a.cfg.Aggregation.WindowDays
			}
			ctx, cancel := signalContext(a.log)
			defer cancel()

			rep, err := a.scheduler.RunAggregation(ctx, aggregate.WindowStart(time.Now(), windowDays))
			printReport(cmd, rep)
			if err != nil && rep != nil && rep.Status != report.StatusFailed {
				a.log.Warn("Some trader summaries were not updated", zap.Error(err))
			}
			return runError(rep, err)
		},
	}
	cmd.Flags().IntVar(&windowDays, "window-days", 90, "length of the trailing window in days")
	return cmd
}

func newScheduleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run extraction and aggregation on their cron schedules until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.log.Sync()

			if err := a.scheduler.Register(a.cfg.Schedule.Crawl, a.cfg.Schedule.Aggregate); err != nil {
				return err
			}
			ctx, cancel := signalContext(a.log)
			defer cancel()

			a.scheduler.Start()
			<-ctx.Done()
			a.scheduler.Stop()

			a.log.Info("Tracker has been shut down.")
			return nil
		},
	}
}
