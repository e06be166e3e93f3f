// Package storage persists run traces and archives run artifacts. Trace
// stores index runs for the API's lookup endpoints; blob stores hold the
// serialized report and trace documents.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/moltpulse/moltpulse/internal/trace"
)

// ErrNotFound is returned when a run ID is unknown.
var ErrNotFound = errors.New("run not found")

// RunSummary is the listing row for one stored run.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Domain     string    `json:"domain"`
	Profile    string    `json:"profile"`
	ReportType string    `json:"report_type"`
	Depth      string    `json:"depth"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

// TraceStore persists and retrieves run traces.
type TraceStore interface {
	SaveTrace(ctx context.Context, rt *trace.RunTrace) error
	GetTrace(ctx context.Context, runID string) (*trace.RunTrace, error)
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
}
