// Package trace records the structured execution trace of one run: every
// attempted collector, its API sub-calls, and the processing summary. Trace
// writes are append-only and never participate in the run's success or
// failure decisions.
package trace

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// APICall is the record of a single upstream call made by a collector.
type APICall struct {
	Endpoint  string    `json:"endpoint"`
	Method    string    `json:"method"`
	Status    int       `json:"status"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
	Cached    bool      `json:"cached"`
	Error     string    `json:"error,omitempty"`
}

// CollectorTrace is the outcome of one attempted collector, including
// collectors that were never invoked (Skipped true). Safe for the owning
// goroutine plus concurrent RecordCall writers.
type CollectorTrace struct {
	mu sync.Mutex

	Name             string    `json:"name"`
	Type             string    `json:"type"`
	StartedAt        time.Time `json:"started_at,omitzero"`
	EndedAt          time.Time `json:"ended_at,omitzero"`
	DurationMS       int64     `json:"duration_ms"`
	Attempts         int       `json:"attempts"`
	ItemsCollected   int       `json:"items_collected"`
	ItemsAfterFilter int       `json:"items_after_filter"`
	APICalls         []APICall `json:"api_calls"`
	Success          bool      `json:"success"`
	Skipped          bool      `json:"skipped,omitempty"`
	SkipReason       string    `json:"skip_reason,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// NewCollectorTrace builds a trace for a collector about to be attempted.
func NewCollectorTrace(name, collectorType string) *CollectorTrace {
	return &CollectorTrace{
		Name:     name,
		Type:     collectorType,
		APICalls: []APICall{},
	}
}

// NewSkippedTrace records a collector that was never invoked.
func NewSkippedTrace(name, collectorType, reason string) *CollectorTrace {
	return &CollectorTrace{
		Name:       name,
		Type:       collectorType,
		APICalls:   []APICall{},
		Skipped:    true,
		SkipReason: reason,
	}
}

// Start marks the collection start.
func (c *CollectorTrace) Start(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StartedAt = now
}

// Complete marks the collection end and records the outcome.
func (c *CollectorTrace) Complete(now time.Time, itemsCollected int, success bool, errText string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EndedAt = now
	if !c.StartedAt.IsZero() {
		c.DurationMS = now.Sub(c.StartedAt).Milliseconds()
	}
	c.ItemsCollected = itemsCollected
	c.Success = success
	c.Error = errText
}

// SetItemsAfterFilter records how many of the collector's items survived
// processing.
func (c *CollectorTrace) SetItemsAfterFilter(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ItemsAfterFilter = n
}

// RecordCall appends one API sub-call. Safe for concurrent writers.
func (c *CollectorTrace) RecordCall(call APICall) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.APICalls = append(c.APICalls, call)
}

// AddAttempt increments the attempt counter.
func (c *CollectorTrace) AddAttempt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Attempts++
}

// CallCount returns the number of recorded API calls.
func (c *CollectorTrace) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.APICalls)
}

// ProcessingSummary captures pipeline stage counts and the resulting score
// range. Assembled by the pipeline once per run.
type ProcessingSummary struct {
	ItemsBeforeFilter int     `json:"items_before_filter"`
	ItemsAfterFilter  int     `json:"items_after_filter"`
	ItemsAfterDedupe  int     `json:"items_after_dedupe"`
	ItemsDelivered    int     `json:"items_delivered"`
	ScoreMin          float64 `json:"score_min"`
	ScoreMax          float64 `json:"score_max"`
}

// DeliveryTrace records the hand-off of the finished run to downstream
// consumers (archive, publisher).
type DeliveryTrace struct {
	Channel    string `json:"channel"`
	DurationMS int64  `json:"duration_ms"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// RunTrace is the write-once, read-many record of one run.
type RunTrace struct {
	mu sync.Mutex

	RunID      string             `json:"run_id"`
	Domain     string             `json:"domain"`
	Profile    string             `json:"profile"`
	ReportType string             `json:"report_type"`
	Depth      string             `json:"depth"`
	StartedAt  time.Time          `json:"started_at,omitzero"`
	EndedAt    time.Time          `json:"ended_at,omitzero"`
	DurationMS int64              `json:"duration_ms"`
	Collectors []*CollectorTrace  `json:"collectors"`
	Processing *ProcessingSummary `json:"processing,omitempty"`
	Delivery   []DeliveryTrace    `json:"delivery,omitempty"`
}

// NewRunTrace builds a trace for a run about to start.
func NewRunTrace(runID, domain, profileName, reportType, depth string) *RunTrace {
	return &RunTrace{
		RunID:      runID,
		Domain:     domain,
		Profile:    profileName,
		ReportType: reportType,
		Depth:      depth,
		Collectors: []*CollectorTrace{},
	}
}

// Start marks the run start.
func (t *RunTrace) Start(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.StartedAt = now
}

// Complete marks the run end.
func (t *RunTrace) Complete(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.EndedAt = now
	if !t.StartedAt.IsZero() {
		t.DurationMS = now.Sub(t.StartedAt).Milliseconds()
	}
}

// AddCollector appends a collector trace. Safe for concurrent writers.
func (t *RunTrace) AddCollector(ct *CollectorTrace) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Collectors = append(t.Collectors, ct)
}

// SetProcessing attaches the pipeline summary.
func (t *RunTrace) SetProcessing(s ProcessingSummary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Processing = &s
}

// AddDelivery appends a delivery record.
func (t *RunTrace) AddDelivery(d DeliveryTrace) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Delivery = append(t.Delivery, d)
}

// SuccessfulCollectors counts collectors that completed without error.
func (t *RunTrace) SuccessfulCollectors() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.Collectors {
		if !c.Skipped && c.Success {
			n++
		}
	}
	return n
}

// FailedCollectors counts collectors that were attempted and failed.
func (t *RunTrace) FailedCollectors() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.Collectors {
		if !c.Skipped && !c.Success {
			n++
		}
	}
	return n
}

// TotalItemsCollected sums items across all collectors.
func (t *RunTrace) TotalItemsCollected() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.Collectors {
		n += c.ItemsCollected
	}
	return n
}

// MarshalJSON serializes the trace under the mutex so an in-flight run can
// be snapshotted safely.
func (t *RunTrace) MarshalJSON() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	type alias RunTrace
	data, err := json.Marshal((*alias)(t))
	if err != nil {
		return nil, fmt.Errorf("marshal run trace: %w", err)
	}
	return data, nil
}
