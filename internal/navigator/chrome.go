package navigator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"toplist-tracker-go/internal/config"

	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Options configures the headless Chrome session.
type Options struct {
	WaitTimeout      time.Duration
	Headless         bool
	UserAgent        string
	ListSelector     string
	RowSelector      string
	DetailSelector   string
	DetailLinkColumn int
}

// OptionsFromConfig maps the crawler configuration onto navigator options.
func OptionsFromConfig(cfg *config.Crawler) Options {
	opts := Options{
		WaitTimeout:      cfg.WaitTimeout,
		Headless:         cfg.Headless,
		UserAgent:        cfg.UserAgent,
		ListSelector:     cfg.ListSelector,
		RowSelector:      cfg.RowSelector,
		DetailSelector:   cfg.DetailSelector,
		DetailLinkColumn: cfg.DetailLinkColumn,
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = DefaultWaitTimeout
	}
	return opts
}

// ChromeNavigator implements Navigator on top of a chromedp browser tab.
type ChromeNavigator struct {
	mu            sync.Mutex
	opts          Options
	logger        *zap.Logger
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	// crashed is set once the tab is gone; every later call fails with ErrSessionFailure.
	crashed atomic.Bool
}

// ensure ChromeNavigator implements the interface
var _ Navigator = (*ChromeNavigator)(nil)

// NewChromeNavigator launches a browser and returns a session bound to one tab.
func NewChromeNavigator(opts Options, logger *zap.Logger) (*ChromeNavigator, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", opts.Headless))
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Running no actions starts the browser, so launch failures surface here.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: could not start browser: %v", ErrSessionFailure, err)
	}

	n := &ChromeNavigator{
		opts:          opts,
		logger:        logger.Named("navigator"),
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}
	chromedp.ListenTarget(browserCtx, n.handleEvent)
	return n, nil
}

func (n *ChromeNavigator) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *inspector.EventTargetCrashed:
		n.logger.Error("Browser tab crashed")
		n.crashed.Store(true)
	case *inspector.EventDetached:
		n.logger.Error("Browser tab detached", zap.String("reason", string(e.Reason)))
		n.crashed.Store(true)
	case *page.EventJavascriptDialogOpening:
		// A pending alert blocks every further action on the tab.
		n.logger.Warn("Dismissing page dialog", zap.String("message", e.Message))
		go func() {
			if err := chromedp.Run(n.browserCtx, page.HandleJavaScriptDialog(false)); err != nil {
				n.logger.Warn("Failed to dismiss page dialog", zap.Error(err))
			}
		}()
	}
}

// NewChromeFactory returns a Factory that launches one browser per session.
func NewChromeFactory(opts Options, logger *zap.Logger) Factory {
	return func(ctx context.Context) (Navigator, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return NewChromeNavigator(opts, logger)
	}
}

// Open implements Navigator.
func (n *ChromeNavigator) Open(ctx context.Context, listURL string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.logger.Debug("Opening list page", zap.String("url", listURL))
	return n.run(ctx, "open list",
		chromedp.Navigate(listURL),
		chromedp.WaitReady(n.opts.ListSelector, chromedp.ByQuery),
	)
}

// WaitForRows implements Navigator.
func (n *ChromeNavigator) WaitForRows(ctx context.Context) ([]Row, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	var cells [][]string
	err := n.run(ctx, "wait for rows",
		chromedp.WaitReady(n.opts.ListSelector, chromedp.ByQuery),
		chromedp.Evaluate(rowsScript(n.opts.RowSelector), &cells),
	)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, len(cells))
	for i, c := range cells {
		rows[i] = Row{Index: i, Cells: c}
	}
	return rows, nil
}

// OpenDetail implements Navigator.
func (n *ChromeNavigator) OpenDetail(ctx context.Context, row Row) (*Detail, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	link := fmt.Sprintf("%s:nth-child(%d) td:nth-child(%d) a", n.opts.RowSelector, row.Index+1, n.opts.DetailLinkColumn+1)

	var tables [][][]string
	err := n.run(ctx, "open detail",
		chromedp.Click(link, chromedp.ByQuery),
		chromedp.WaitReady(n.opts.DetailSelector, chromedp.ByQuery),
		chromedp.Evaluate(tablesScript(n.opts.DetailSelector), &tables),
	)
	if err != nil {
		return nil, err
	}

	detail := &Detail{}
	if len(tables) > 0 {
		detail.Buy = tables[0]
	}
	if len(tables) > 1 {
		detail.Sell = tables[1]
	}
	return detail, nil
}

// Back implements Navigator.
func (n *ChromeNavigator) Back(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.run(ctx, "back to list",
		chromedp.NavigateBack(),
		chromedp.WaitReady(n.opts.ListSelector, chromedp.ByQuery),
	)
}

// Close implements Navigator.
func (n *ChromeNavigator) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	err := chromedp.Cancel(n.browserCtx)
	n.browserCancel()
	n.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

// run executes actions under the wait bound. The caller's context can still cancel it early.
func (n *ChromeNavigator) run(ctx context.Context, step string, actions ...chromedp.Action) error {
	if n.browserCtx.Err() != nil || n.crashed.Load() {
		return fmt.Errorf("%w: %s: browser is gone", ErrSessionFailure, step)
	}

	waitCtx, cancel := context.WithTimeout(n.browserCtx, n.opts.WaitTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(waitCtx, actions...)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case n.browserCtx.Err() != nil || n.crashed.Load():
		return fmt.Errorf("%w: %s: %v", ErrSessionFailure, step, err)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(waitCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s after %s", ErrNavigationTimeout, step, n.opts.WaitTimeout)
	default:
		return fmt.Errorf("%s: %w", step, err)
	}
}

func rowsScript(rowSelector string) string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(tr =>
	Array.from(tr.querySelectorAll('td')).map(td => td.innerText))`, jsString(rowSelector))
}

func tablesScript(tableSelector string) string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).slice(0, 2).map(table =>
	Array.from(table.querySelectorAll('tr')).map(tr =>
		Array.from(tr.querySelectorAll('td, th')).map(cell => cell.innerText)))`, jsString(tableSelector))
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
