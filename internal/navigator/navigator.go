// Package navigator drives the list → detail → back browsing protocol of the top-list page.
package navigator

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNavigationTimeout is returned when a page did not become ready within the wait bound.
	// Callers may skip the current row and continue.
	ErrNavigationTimeout = errors.New("navigation timeout")
	// ErrSessionFailure is returned when the browsing session itself is gone.
	ErrSessionFailure = errors.New("browsing session failure")
)

// DefaultWaitTimeout bounds every wait for asynchronous content.
const DefaultWaitTimeout = 10 * time.Second

// Row is one ready list row: its position on the page and the text of its cells.
type Row struct {
	Index int
	Cells []string
}

// Detail holds the raw rows of the buy and sell sub-tables, header rows included.
type Detail struct {
	Buy  [][]string
	Sell [][]string
}

// Navigator is a stateful browsing session. It is not reentrant: only one navigation may be in
// flight at a time, and every call mutates the session's current page.
type Navigator interface {
	// Open loads the list page and waits until it is ready.
	Open(ctx context.Context, listURL string) error
	// WaitForRows blocks until the list rows are ready and returns them.
	WaitForRows(ctx context.Context) ([]Row, error)
	// OpenDetail opens the detail view of row and returns its sub-tables once ready.
	OpenDetail(ctx context.Context, row Row) (*Detail, error)
	// Back returns to the list page and waits until it is ready again.
	Back(ctx context.Context) error
	// Close releases the session.
	Close() error
}

// Factory opens a new, independent browsing session.
type Factory func(ctx context.Context) (Navigator, error)
