// Package extract walks the top-list page row by row and persists every disclosure it finds.
package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"toplist-tracker-go/internal/models"
	"toplist-tracker-go/internal/navigator"
	"toplist-tracker-go/internal/parser"
	"toplist-tracker-go/internal/report"
	"toplist-tracker-go/internal/store"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Store is the part of the persistence layer an extraction run writes to.
type Store interface {
	GetOrCreateSecurity(ctx context.Context, sec *models.Security) (*models.Security, bool, error)
	DisclosureExists(ctx context.Context, securityID uint, tradeDate time.Time, reason string) (bool, error)
	CreateDisclosure(ctx context.Context, d *models.Disclosure, lines []models.DisclosureLine) error
}

// Options tunes an Orchestrator.
type Options struct {
	ListURL string
	// Dedupe skips rows whose (security, date, reason) is already stored.
	Dedupe bool
	// RowsPerSecond paces row processing. Zero or less means unlimited.
	RowsPerSecond float64
}

// Orchestrator runs extraction passes. Each Run owns its own browsing session, so runs for
// different dates may execute concurrently.
type Orchestrator struct {
	logger     *zap.Logger
	store      Store
	newSession navigator.Factory
	venues     parser.VenuePolicy
	opts       Options
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(logger *zap.Logger, st Store, newSession navigator.Factory, venues parser.VenuePolicy, opts Options) *Orchestrator {
	limit := rate.Inf
	if opts.RowsPerSecond > 0 {
		limit = rate.Limit(opts.RowsPerSecond)
	}
	return &Orchestrator{
		logger:     logger.Named("extract"),
		store:      st,
		newSession: newSession,
		venues:     venues,
		opts:       opts,
		limiter:    rate.NewLimiter(limit, 1),
		now:        time.Now,
	}
}

// Run performs one pass over the list page. A zero forDate accepts rows of any trading day,
// otherwise rows of other days are filtered out. Per-row faults are counted as skipped and the
// pass continues; a session failure or an unavailable store ends it with StatusFailed and a
// non-nil error. The browsing session is always released.
func (o *Orchestrator) Run(ctx context.Context, forDate time.Time) (*report.RunReport, error) {
	rep := report.New(report.KindExtraction, o.now())
	r := &run{
		o:       o,
		rep:     rep,
		forDate: truncateDay(forDate),
		logger:  o.logger.With(zap.String("run_id", rep.ID)),
		state:   StateStart,
	}

	r.logger.Info("Starting extraction run", zap.String("url", o.opts.ListURL), zap.Time("for_date", r.forDate))
	err := r.execute(ctx)
	rep.Finish(o.now(), err)
	if err != nil {
		r.transition(StateFailed)
		r.logger.Error("Extraction run failed",
			zap.Int("processed", rep.Processed), zap.Int("skipped", rep.Skipped), zap.Error(err))
		return rep, err
	}

	r.transition(StateDone)
	r.logger.Info("Extraction run finished",
		zap.String("status", string(rep.Status)),
		zap.Int("processed", rep.Processed),
		zap.Int("skipped", rep.Skipped),
		zap.Int("filtered", rep.Filtered),
		zap.Int("duplicates", rep.Duplicates),
		zap.Duration("duration", rep.Duration()))
	return rep, nil
}

// view is where the session is left after a row.
type view int

const (
	viewList view = iota
	viewDetail
	viewUnknown
)

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeFiltered
	outcomeDuplicate
	outcomeSkipped
)

// run is the state of a single pass.
type run struct {
	o       *Orchestrator
	rep     *report.RunReport
	nav     navigator.Navigator
	forDate time.Time
	logger  *zap.Logger
	state   State
}

func (r *run) transition(to State) {
	r.logger.Debug("State transition", zap.Stringer("from", r.state), zap.Stringer("to", to))
	r.state = to
}

func (r *run) execute(ctx context.Context) error {
	nav, err := r.o.newSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to start browsing session: %w", err)
	}
	r.nav = nav
	defer func() {
		if cerr := nav.Close(); cerr != nil {
			r.logger.Warn("Failed to release browsing session", zap.Error(cerr))
		}
	}()

	rows, err := r.reload(ctx)
	if err != nil {
		return fmt.Errorf("failed to load list page: %w", err)
	}
	r.transition(StateListLoaded)
	total := len(rows)
	r.logger.Info("List page loaded", zap.Int("rows", total))

	for i := 0; i < total; i++ {
		if err := r.o.limiter.Wait(ctx); err != nil {
			return err
		}
		if i >= len(rows) {
			r.logger.Warn("List shrank while iterating", zap.Int("expected", total), zap.Int("got", len(rows)))
			break
		}

		index := rows[i].Index
		r.transition(StateRowIterating)
		out, at, err := r.processRow(ctx, rows[i])
		switch {
		case err != nil && fatal(err):
			return fmt.Errorf("row %d: %w", index, err)
		case err != nil:
			r.rep.Skipped++
			r.rep.AddError(fmt.Errorf("row %d: %w", index, err))
			r.logger.Warn("Skipping row", zap.Int("row", index), zap.Error(err))
		case out == outcomeFiltered:
			r.rep.Filtered++
		case out == outcomeDuplicate:
			r.rep.Duplicates++
		default:
			r.rep.Processed++
		}

		if at == viewList {
			continue
		}
		// Row handles are stale once the list was left, so re-acquire them.
		if rows, err = r.returnToList(ctx, at); err != nil {
			return fmt.Errorf("failed to return to list after row %d: %w", index, err)
		}
	}
	return nil
}

// processRow handles one list row and reports which view the session was left in.
func (r *run) processRow(ctx context.Context, row navigator.Row) (outcome, view, error) {
	raw, err := parser.ParseListRow(row.Cells, r.o.venues)
	if err != nil {
		return outcomeSkipped, viewList, err
	}
	logger := r.logger.With(zap.Int("row", row.Index), zap.String("code", raw.Code))

	if !r.forDate.IsZero() && !raw.TradeDate.Equal(r.forDate) {
		logger.Debug("Row is for another trading day", zap.Time("trade_date", raw.TradeDate))
		return outcomeFiltered, viewList, nil
	}

	sec, created, err := r.o.store.GetOrCreateSecurity(ctx, &models.Security{
		Code:   raw.Code,
		Name:   raw.Name,
		Market: raw.Market,
	})
	if err != nil {
		return outcomeSkipped, viewList, err
	}
	if created {
		logger.Info("New security", zap.String("name", sec.Name), zap.String("market", sec.Market))
	}

	if r.o.opts.Dedupe {
		exists, err := r.o.store.DisclosureExists(ctx, sec.ID, raw.TradeDate, raw.Reason)
		if err != nil {
			return outcomeSkipped, viewList, err
		}
		if exists {
			logger.Debug("Disclosure already stored", zap.String("reason", raw.Reason))
			return outcomeDuplicate, viewList, nil
		}
	}

	r.transition(StateDetailOpen)
	detail, err := r.nav.OpenDetail(ctx, row)
	if err != nil {
		return outcomeSkipped, viewUnknown, fmt.Errorf("failed to open detail: %w", err)
	}

	lines, err := parseDetail(detail)
	if err != nil {
		return outcomeSkipped, viewDetail, err
	}
	r.transition(StateDetailParsed)

	d := &models.Disclosure{
		SecurityID:  sec.ID,
		TradeDate:   raw.TradeDate,
		Reason:      raw.Reason,
		TotalBuy:    raw.TotalBuy,
		TotalSell:   raw.TotalSell,
		Turnover:    raw.Turnover,
		PriceChange: raw.PriceChange,
	}
	if err := r.o.store.CreateDisclosure(ctx, d, lines); err != nil {
		return outcomeSkipped, viewDetail, err
	}
	logger.Debug("Disclosure stored", zap.Uint("id", d.ID), zap.Int("lines", len(lines)))
	return outcomeProcessed, viewDetail, nil
}

// returnToList brings the session back to a ready list. From a detail view it tries Back first;
// when that times out, or the view is unknown, the list URL is loaded again.
func (r *run) returnToList(ctx context.Context, from view) ([]navigator.Row, error) {
	r.transition(StateBackToList)
	if from == viewDetail {
		err := r.nav.Back(ctx)
		if err == nil {
			var rows []navigator.Row
			if rows, err = r.nav.WaitForRows(ctx); err == nil {
				return rows, nil
			}
		}
		if fatal(err) {
			return nil, err
		}
		r.logger.Warn("Back navigation failed, reloading list", zap.Error(err))
	}
	return r.reload(ctx)
}

func (r *run) reload(ctx context.Context) ([]navigator.Row, error) {
	if err := r.nav.Open(ctx, r.o.opts.ListURL); err != nil {
		return nil, err
	}
	return r.nav.WaitForRows(ctx)
}

// parseDetail converts both sub-tables. The first row of each is the header; rows with too few
// cells are layout filler and are ignored. Any other unreadable row fails the whole detail.
func parseDetail(detail *navigator.Detail) ([]models.DisclosureLine, error) {
	var lines []models.DisclosureLine
	tables := []struct {
		rows      [][]string
		direction models.Direction
	}{
		{detail.Buy, models.DirectionBuy},
		{detail.Sell, models.DirectionSell},
	}
	for _, table := range tables {
		for i, cells := range table.rows {
			if i == 0 || len(cells) < parser.MinDetailCells {
				continue
			}
			raw, err := parser.ParseDetailRow(cells, table.direction)
			if err != nil {
				return nil, fmt.Errorf("%s table row %d: %w", table.direction, i, err)
			}
			lines = append(lines, models.DisclosureLine{
				TraderName: raw.TraderName,
				Direction:  raw.Direction,
				Amount:     raw.Amount,
				Proportion: raw.Proportion,
			})
		}
	}
	return lines, nil
}

// fatal reports whether err ends the whole run rather than the current row.
func fatal(err error) bool {
	return errors.Is(err, navigator.ErrSessionFailure) ||
		errors.Is(err, store.ErrUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func truncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
