// Package scheduler triggers extraction after the market close and aggregation nightly.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"toplist-tracker-go/internal/aggregate"
	"toplist-tracker-go/internal/config"
	"toplist-tracker-go/internal/logger"
	"toplist-tracker-go/internal/notify"
	"toplist-tracker-go/internal/report"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Extractor runs one extraction pass.
type Extractor interface {
	Run(ctx context.Context, forDate time.Time) (*report.RunReport, error)
}

// Aggregator recomputes trader summaries.
type Aggregator interface {
	Recompute(ctx context.Context, windowStart time.Time) (*report.RunReport, error)
}

// Scheduler owns the cron calendar. A job still running when its next slot comes up makes
// that slot a no-op.
type Scheduler struct {
	cron       *cron.Cron
	logger     *zap.Logger
	extractor  Extractor
	aggregator Aggregator
	notifier   notify.Notifier
	windowDays int
	loc        *time.Location
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler in the timezone of cfg.
func New(log *zap.Logger, extractor Extractor, aggregator Aggregator, notifier notify.Notifier, cfg *config.Schedule, windowDays int) (*Scheduler, error) {
	loc := time.Local
	if cfg.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(cfg.Timezone); err != nil {
			return nil, fmt.Errorf("invalid schedule timezone %q: %w", cfg.Timezone, err)
		}
	}

	log = log.Named("scheduler")
	cronLogger := cron.PrintfLogger(logger.StdLogger(log, "cron"))
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		logger:     log,
		extractor:  extractor,
		aggregator: aggregator,
		notifier:   notifier,
		windowDays: windowDays,
		loc:        loc,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Register adds the extraction and aggregation jobs. Specs include a seconds field.
func (s *Scheduler) Register(crawlSpec, aggregateSpec string) error {
	if _, err := s.cron.AddFunc(crawlSpec, s.crawlJob); err != nil {
		return fmt.Errorf("invalid crawl schedule %q: %w", crawlSpec, err)
	}
	s.logger.Info("Job registered", zap.String("job", "crawl"), zap.String("schedule", crawlSpec))

	if _, err := s.cron.AddFunc(aggregateSpec, s.aggregateJob); err != nil {
		return fmt.Errorf("invalid aggregate schedule %q: %w", aggregateSpec, err)
	}
	s.logger.Info("Job registered", zap.String("job", "aggregate"), zap.String("schedule", aggregateSpec))
	return nil
}

// Start starts the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started", zap.String("timezone", s.loc.String()))
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// RunExtraction runs an extraction pass for forDate and delivers its report.
func (s *Scheduler) RunExtraction(ctx context.Context, forDate time.Time) (*report.RunReport, error) {
	rep, err := s.extractor.Run(ctx, forDate)
	s.deliver(ctx, rep)
	return rep, err
}

// RunAggregation recomputes the trader summaries from windowStart and delivers the report.
func (s *Scheduler) RunAggregation(ctx context.Context, windowStart time.Time) (*report.RunReport, error) {
	rep, err := s.aggregator.Recompute(ctx, windowStart)
	s.deliver(ctx, rep)
	return rep, err
}

func (s *Scheduler) crawlJob() {
	forDate := s.today()
	s.logger.Info("Running job", zap.String("job", "crawl"), zap.Time("for_date", forDate))
	if _, err := s.RunExtraction(s.ctx, forDate); err != nil {
		s.logger.Error("Job failed", zap.String("job", "crawl"), zap.Error(err))
	}
}

func (s *Scheduler) aggregateJob() {
	windowStart := aggregate.WindowStart(s.now().In(s.loc), s.windowDays)
	s.logger.Info("Running job", zap.String("job", "aggregate"), zap.Time("window_start", windowStart))
	if _, err := s.RunAggregation(s.ctx, windowStart); err != nil {
		s.logger.Error("Job failed", zap.String("job", "aggregate"), zap.Error(err))
	}
}

// today is the current trading day in the scheduler's timezone.
func (s *Scheduler) today() time.Time {
	y, m, d := s.now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Scheduler) deliver(ctx context.Context, rep *report.RunReport) {
	if rep == nil {
		return
	}
	if err := s.notifier.Notify(ctx, rep); err != nil {
		s.logger.Warn("Failed to deliver run report", zap.String("run_id", rep.ID), zap.Error(err))
	}
}
