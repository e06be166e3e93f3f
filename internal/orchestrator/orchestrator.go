// Package orchestrator drives one full collection run: load definitions,
// probe availability, coordinate collectors, process items, assemble the
// report, and hand the results to storage and the event publisher.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/moltpulse/moltpulse/internal/availability"
	"github.com/moltpulse/moltpulse/internal/coordinator"
	"github.com/moltpulse/moltpulse/internal/metrics"
	"github.com/moltpulse/moltpulse/internal/pipeline"
	"github.com/moltpulse/moltpulse/internal/profile"
	"github.com/moltpulse/moltpulse/internal/pulse"
	"github.com/moltpulse/moltpulse/internal/report"
	"github.com/moltpulse/moltpulse/internal/storage"
	"github.com/moltpulse/moltpulse/internal/trace"
)

// RunParams selects what to collect and how hard to try. Zero values fall
// back to the orchestrator's configured defaults.
type RunParams struct {
	Domain            string
	Profile           string
	ReportType        string
	Depth             pulse.Depth
	Days              int
	Limit             int
	Retries           int
	Timeout           time.Duration
	Deadline          time.Duration
	Collectors        []string
	ExcludeCollectors []string
	NoCache           bool
}

// RunResult is everything one run produced.
type RunResult struct {
	Report *report.Report
	Trace  *trace.RunTrace
	// ReportURI is the archive location of the report, empty when the
	// archive delivery failed or no blob store is configured.
	ReportURI string
}

// RunEvent is the payload published when a run completes.
type RunEvent struct {
	RunID      string    `json:"run_id"`
	Domain     string    `json:"domain"`
	Profile    string    `json:"profile"`
	ReportType string    `json:"report_type"`
	Items      int       `json:"items"`
	DurationMS int64     `json:"duration_ms"`
	ReportURI  string    `json:"report_uri,omitempty"`
	EndedAt    time.Time `json:"ended_at"`
}

// Deps carries the orchestrator's collaborators.
type Deps struct {
	DomainsDir  string
	Collectors  []pulse.Collector
	Coordinator *coordinator.Coordinator
	Pipeline    *pipeline.Pipeline
	Traces      storage.TraceStore
	Blobs       pulse.BlobStore
	Publisher   pulse.Publisher
	Topic       string
	Lookup      availability.LookupFunc
	Clock       pulse.Clock
	IDs         pulse.IDGenerator
	Logger      *zap.Logger

	// DefaultDays bounds the collection window when RunParams.Days is zero.
	DefaultDays int
	// DefaultRetries applies when RunParams.Retries is zero.
	DefaultRetries int
	// DefaultDeadline bounds the whole run when RunParams.Deadline is
	// zero; collectors still in flight when it elapses are abandoned.
	DefaultDeadline time.Duration
	Depths          pulse.DepthTable
}

// Orchestrator runs collections end to end.
type Orchestrator struct {
	deps Deps
}

// New builds an Orchestrator. Deps.Traces, Blobs, and Publisher may each be
// nil; the corresponding delivery is then skipped.
func New(deps Deps) *Orchestrator {
	if deps.DefaultDays <= 0 {
		deps.DefaultDays = 7
	}
	if deps.Depths == nil {
		deps.Depths = pulse.DefaultDepthTable()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Orchestrator{deps: deps}
}

// Probe reports the availability of every registered collector.
func (o *Orchestrator) Probe() []availability.Status {
	return availability.Probe(o.deps.Collectors, o.deps.Lookup)
}

// Run executes one collection run. The returned trace is populated even when
// the run fails; deliveries are best-effort and never fail the run.
func (o *Orchestrator) Run(ctx context.Context, params RunParams) (*RunResult, error) {
	runID, err := o.deps.IDs.NewID()
	if err != nil {
		return nil, fmt.Errorf("generating run id: %w", err)
	}

	domain, err := profile.LoadDomain(o.deps.DomainsDir, params.Domain)
	if err != nil {
		return nil, err
	}
	profileName := params.Profile
	if profileName == "" {
		profileName = "default"
	}
	prof, err := profile.LoadProfile(o.deps.DomainsDir, domain, profileName)
	if err != nil {
		return nil, err
	}
	reportType := params.ReportType
	if reportType == "" {
		types := domain.ReportTypes()
		if len(types) > 0 {
			reportType = types[0]
		}
	}
	if reportType != "" && len(domain.Reports) > 0 && !domain.SupportsReport(reportType) {
		return nil, fmt.Errorf("domain %q does not define report type %q", domain.Name, reportType)
	}

	depth := params.Depth
	if depth == "" {
		depth = pulse.DepthDefault
	}
	limits := o.deps.Depths.Resolve(depth)

	days := params.Days
	if days <= 0 {
		days = o.deps.DefaultDays
	}
	now := o.deps.Clock.Now()
	from := now.AddDate(0, 0, -days)

	retries := params.Retries
	if retries <= 0 {
		retries = o.deps.DefaultRetries
	}
	deadline := params.Deadline
	if deadline <= 0 {
		deadline = o.deps.DefaultDeadline
	}

	rt := trace.NewRunTrace(runID, domain.Name, prof.Name, reportType, string(depth))
	rt.Start(now)
	metrics.RunsStarted.WithLabelValues(reportType, string(depth)).Inc()

	log := o.deps.Logger.With(
		zap.String("run_id", runID),
		zap.String("domain", domain.Name),
		zap.String("profile", prof.Name),
		zap.String("report_type", reportType),
	)
	log.Info("run started",
		zap.String("depth", string(depth)),
		zap.Time("from", from),
		zap.Time("to", now),
	)

	req := pulse.CollectRequest{
		Profile: prof,
		From:    from,
		To:      now,
		Depth:   depth,
		Limits:  limits,
		NoCache: params.NoCache,
	}
	opts := coordinator.Options{
		Allow:    params.Collectors,
		Deny:     params.ExcludeCollectors,
		Retries:  retries,
		Timeout:  params.Timeout,
		Deadline: deadline,
	}

	statuses := availability.Probe(o.deps.Collectors, o.deps.Lookup)
	items, sources, err := o.deps.Coordinator.Run(ctx, req, statuses, opts, rt)
	if err != nil {
		rt.Complete(o.deps.Clock.Now())
		metrics.RunsCompleted.WithLabelValues(reportType, "error").Inc()
		o.saveTrace(ctx, rt, log)
		return &RunResult{Trace: rt}, err
	}

	processed, summary := o.deps.Pipeline.Process(items, pipeline.Request{
		Profile: prof,
		From:    from,
		To:      now,
		Limit:   params.Limit,
	})
	rt.SetProcessing(summary)
	o.recordSurvivors(rt, processed)
	metrics.ItemsDelivered.WithLabelValues(reportType).Add(float64(len(processed)))

	rep := report.Assemble(report.Meta{
		RunID:       runID,
		Domain:      domain.Name,
		Profile:     prof.Name,
		ReportType:  reportType,
		GeneratedAt: o.deps.Clock.Now(),
		Window:      report.Window{From: from, To: now},
	}, processed, sources)

	reportURI := o.archive(ctx, rt, rep, log)
	ended := o.deps.Clock.Now()
	rt.Complete(ended)
	o.archiveTrace(ctx, rt, domain.Name, log)
	o.publish(ctx, rt, RunEvent{
		RunID:      runID,
		Domain:     domain.Name,
		Profile:    prof.Name,
		ReportType: reportType,
		Items:      len(processed),
		DurationMS: rt.DurationMS,
		ReportURI:  reportURI,
		EndedAt:    ended,
	}, log)
	o.saveTrace(ctx, rt, log)

	metrics.RunsCompleted.WithLabelValues(reportType, "ok").Inc()
	metrics.RunDuration.WithLabelValues(reportType).Observe(float64(rt.DurationMS) / 1000)
	log.Info("run completed",
		zap.Int("items", len(processed)),
		zap.Int64("duration_ms", rt.DurationMS),
		zap.String("report_uri", reportURI),
	)

	return &RunResult{Report: rep, Trace: rt, ReportURI: reportURI}, nil
}

// recordSurvivors attributes the processed items back to their collectors by
// registration rank and stamps each collector trace with its survivor count.
func (o *Orchestrator) recordSurvivors(rt *trace.RunTrace, items []pulse.Item) {
	rankName := make(map[int]string, len(o.deps.Collectors))
	for i, c := range o.deps.Collectors {
		rankName[i] = c.Name()
	}
	counts := make(map[string]int, len(rankName))
	for _, item := range items {
		counts[rankName[item.CollectorRank]]++
	}
	for _, ct := range rt.Collectors {
		if !ct.Skipped {
			ct.SetItemsAfterFilter(counts[ct.Name])
		}
	}
}

// archive writes the report JSON to the blob store. Failures are logged and
// recorded on the trace, never returned.
func (o *Orchestrator) archive(ctx context.Context, rt *trace.RunTrace, rep *report.Report, log *zap.Logger) string {
	if o.deps.Blobs == nil {
		return ""
	}
	started := o.deps.Clock.Now()
	data, err := json.Marshal(rep)
	var uri string
	if err == nil {
		path := fmt.Sprintf("%s/%s/report.json", rep.Domain, rep.RunID)
		uri, err = o.deps.Blobs.PutObject(ctx, path, "application/json", data)
	}
	d := trace.DeliveryTrace{
		Channel:    "archive",
		DurationMS: o.deps.Clock.Now().Sub(started).Milliseconds(),
		Success:    err == nil,
	}
	if err != nil {
		d.Error = err.Error()
		log.Warn("report archive failed", zap.Error(err))
	}
	rt.AddDelivery(d)
	return uri
}

// archiveTrace writes the trace JSON next to the report. It runs after
// Complete so the archived copy carries the final duration; deliveries
// recorded afterwards appear only in the trace store copy.
func (o *Orchestrator) archiveTrace(ctx context.Context, rt *trace.RunTrace, domain string, log *zap.Logger) {
	if o.deps.Blobs == nil {
		return
	}
	started := o.deps.Clock.Now()
	data, err := json.Marshal(rt)
	if err == nil {
		path := fmt.Sprintf("%s/%s/trace.json", domain, rt.RunID)
		_, err = o.deps.Blobs.PutObject(ctx, path, "application/json", data)
	}
	d := trace.DeliveryTrace{
		Channel:    "archive_trace",
		DurationMS: o.deps.Clock.Now().Sub(started).Milliseconds(),
		Success:    err == nil,
	}
	if err != nil {
		d.Error = err.Error()
		log.Warn("trace archive failed", zap.Error(err))
	}
	rt.AddDelivery(d)
}

// publish emits the run-completed event. Failures are logged and recorded on
// the trace, never returned.
func (o *Orchestrator) publish(ctx context.Context, rt *trace.RunTrace, ev RunEvent, log *zap.Logger) {
	if o.deps.Publisher == nil {
		return
	}
	started := o.deps.Clock.Now()
	_, err := o.deps.Publisher.Publish(ctx, o.deps.Topic, ev)
	d := trace.DeliveryTrace{
		Channel:    "publish",
		DurationMS: o.deps.Clock.Now().Sub(started).Milliseconds(),
		Success:    err == nil,
	}
	if err != nil {
		d.Error = err.Error()
		log.Warn("run event publish failed", zap.Error(err))
	}
	rt.AddDelivery(d)
}

// saveTrace persists the full trace. Failures are logged, never returned;
// the trace itself cannot carry its own save record.
func (o *Orchestrator) saveTrace(ctx context.Context, rt *trace.RunTrace, log *zap.Logger) {
	if o.deps.Traces == nil {
		return
	}
	if err := o.deps.Traces.SaveTrace(ctx, rt); err != nil {
		log.Warn("trace save failed", zap.Error(err))
	}
}
