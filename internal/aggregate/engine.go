// Package aggregate recomputes the rolling-window statistics of every trader desk.
package aggregate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"toplist-tracker-go/internal/models"
	"toplist-tracker-go/internal/report"
	"toplist-tracker-go/internal/store"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds the parallel upserts when no worker count is configured.
const DefaultWorkers = 4

// Store is the part of the persistence layer the engine reads from and writes to.
type Store interface {
	DistinctTraderNames(ctx context.Context) ([]string, error)
	TraderWindowStats(ctx context.Context, since time.Time) ([]store.TraderDirectionStat, error)
	UpsertTraderSummary(ctx context.Context, summary *models.TraderSummary) error
}

// Engine recomputes trader summaries. Calls to Recompute on one Engine never overlap.
type Engine struct {
	logger  *zap.Logger
	store   Store
	workers int
	now     func() time.Time

	mu sync.Mutex
}

// NewEngine creates an Engine that upserts with at most workers goroutines.
func NewEngine(logger *zap.Logger, st Store, workers int) *Engine {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Engine{
		logger:  logger.Named("aggregate"),
		store:   st,
		workers: workers,
		now:     time.Now,
	}
}

// Recompute rebuilds every trader summary from the disclosures dated on or after windowStart.
// A failed upsert does not stop the others; all such failures are returned together as one
// error alongside a partial (or failed) report. Reading the window is all or nothing.
// Only the calendar date of windowStart, in its own location, is significant.
func (e *Engine) Recompute(ctx context.Context, windowStart time.Time) (*report.RunReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	windowStart = startOfDay(windowStart)

	rep := report.New(report.KindAggregation, e.now())
	logger := e.logger.With(zap.String("run_id", rep.ID), zap.Time("window_start", windowStart))
	logger.Info("Starting aggregation run")

	names, err := e.store.DistinctTraderNames(ctx)
	if err != nil {
		return e.fail(logger, rep, fmt.Errorf("could not list trader names: %w", err))
	}
	stats, err := e.store.TraderWindowStats(ctx, windowStart)
	if err != nil {
		return e.fail(logger, rep, fmt.Errorf("could not load window statistics: %w", err))
	}

	summaries := Summarize(stats, names, rep.StartedAt)
	logger.Info("Upserting trader summaries", zap.Int("traders", len(summaries)), zap.Int("workers", e.workers))

	var (
		mu       sync.Mutex
		batchErr error
		g        errgroup.Group
	)
	g.SetLimit(e.workers)
	for i := range summaries {
		summary := &summaries[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := e.store.UpsertTraderSummary(ctx, summary)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("Failed to upsert trader summary", zap.String("trader", summary.TraderName), zap.Error(err))
				batchErr = multierr.Append(batchErr, err)
				rep.Skipped++
				return nil
			}
			rep.Processed++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, upsertErr := range multierr.Errors(batchErr) {
			rep.AddError(upsertErr)
		}
		return e.fail(logger, rep, err)
	}

	for _, err := range multierr.Errors(batchErr) {
		rep.AddError(err)
	}
	rep.Finish(e.now(), nil)
	logger.Info("Aggregation run finished",
		zap.String("status", string(rep.Status)),
		zap.Int("processed", rep.Processed),
		zap.Int("skipped", rep.Skipped),
		zap.Duration("duration", rep.Duration()))

	if batchErr != nil {
		return rep, fmt.Errorf("%d of %d trader summaries failed: %w", rep.Skipped, len(summaries), batchErr)
	}
	return rep, nil
}

func (e *Engine) fail(logger *zap.Logger, rep *report.RunReport, err error) (*report.RunReport, error) {
	rep.Finish(e.now(), err)
	logger.Error("Aggregation run failed", zap.Error(err))
	return rep, err
}
