package report

import (
	"time"

	"github.com/google/uuid"
)

// Kind names the job that produced a report.
type Kind string

const (
	KindExtraction  Kind = "extraction"
	KindAggregation Kind = "aggregation"
)

// Status is the outcome of a run as seen by the scheduler.
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

const maxErrors = 50

// RunReport summarizes one extraction or aggregation run.
type RunReport struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Processed  int       `json:"processed"`
	Skipped    int       `json:"skipped"`
	Filtered   int       `json:"filtered,omitempty"`
	Duplicates int       `json:"duplicates,omitempty"`
	Status     Status    `json:"status"`
	Errors     []string  `json:"errors,omitempty"`
}

// New starts a report for a run of the given kind.
func New(kind Kind, startedAt time.Time) *RunReport {
	return &RunReport{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartedAt: startedAt,
		Status:    StatusRunning,
	}
}

// AddError records a diagnostic. Only the first few are kept.
func (r *RunReport) AddError(err error) {
	if err == nil || len(r.Errors) >= maxErrors {
		return
	}
	r.Errors = append(r.Errors, err.Error())
}

// Finish stamps the report and derives its status. A non-nil fatal error always fails the run;
// otherwise skipped items downgrade it to partial, or to failed when nothing was processed.
func (r *RunReport) Finish(finishedAt time.Time, fatal error) {
	r.FinishedAt = finishedAt
	switch {
	case fatal != nil:
		r.AddError(fatal)
		r.Status = StatusFailed
	case r.Skipped == 0:
		r.Status = StatusSuccess
	case r.Processed > 0:
		r.Status = StatusPartial
	default:
		r.Status = StatusFailed
	}
}

// Duration is the wall time of a finished run.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
