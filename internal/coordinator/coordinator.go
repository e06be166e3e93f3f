// Package coordinator fans collection out across the selected collectors and
// merges whatever they produce. One misbehaving collector never takes down a
// run: errors are retried, timeouts and panics are recorded on the trace, and
// the merge keeps every item the healthy collectors returned.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/moltpulse/moltpulse/internal/availability"
	"github.com/moltpulse/moltpulse/internal/metrics"
	"github.com/moltpulse/moltpulse/internal/pulse"
	"github.com/moltpulse/moltpulse/internal/trace"
)

// ErrNoCollectors is returned when selection leaves nothing to run.
var ErrNoCollectors = errors.New("no collectors selected: all unavailable or excluded")

const backoffStep = 500 * time.Millisecond

// Options tunes one coordinated run.
type Options struct {
	// Allow restricts the run to the named collectors (empty: no restriction).
	Allow []string
	// Deny removes the named collectors from the run.
	Deny []string
	// Retries is the number of additional attempts after a collector error.
	// Timeouts are never retried.
	Retries int
	// Timeout overrides the depth-derived per-collector timeout when
	// positive.
	Timeout time.Duration
	// Deadline bounds the whole run when positive; collectors still running
	// at the deadline are abandoned like timeouts.
	Deadline time.Duration
}

// Coordinator runs collectors concurrently and merges their results.
type Coordinator struct {
	collectors []pulse.Collector
	clock      pulse.Clock
	logger     *zap.Logger
}

// New builds a Coordinator over the registered collectors.
func New(collectors []pulse.Collector, clock pulse.Clock, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		collectors: collectors,
		clock:      clock,
		logger:     logger,
	}
}

type taskResult struct {
	collector pulse.Collector
	result    pulse.CollectorResult
	ct        *trace.CollectorTrace
	timedOut  bool
}

// Run executes the selected collectors and returns the merged items and
// sources. Unavailable and excluded collectors are recorded on rt as
// skipped. Run returns ErrNoCollectors when selection is empty; any other
// condition yields a merged (possibly empty) result.
func (c *Coordinator) Run(
	ctx context.Context,
	req pulse.CollectRequest,
	statuses []availability.Status,
	opts Options,
	rt *trace.RunTrace,
) ([]pulse.Item, []pulse.Source, error) {
	selected, skipped := c.selectCollectors(statuses, opts)
	for _, s := range skipped {
		rt.AddCollector(s)
	}
	if len(selected) == 0 {
		return nil, nil, ErrNoCollectors
	}

	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = req.Limits.Timeout
	}

	results := make(chan taskResult, len(selected))
	for _, col := range selected {
		go func(col pulse.Collector) {
			results <- c.runOne(ctx, col, req, timeout, opts.Retries)
		}(col)
	}

	// Rank stamps registration order onto items so downstream tie-breaks
	// and trace attribution stay stable no matter which collectors were
	// selected or when they finished.
	rank := make(map[string]int, len(c.collectors))
	for i, col := range c.collectors {
		rank[col.Name()] = i
	}

	collected := make([]taskResult, 0, len(selected))
	for range selected {
		select {
		case r := <-results:
			collected = append(collected, r)
			rt.AddCollector(r.ct)
		case <-ctx.Done():
			// Global deadline: everything still in flight is abandoned.
			for _, col := range selected {
				if containsResult(collected, col.Name()) {
					continue
				}
				ct := trace.NewCollectorTrace(col.Name(), col.Type())
				ct.Start(c.clock.Now())
				ct.Complete(c.clock.Now(), 0, false, "abandoned at run deadline")
				rt.AddCollector(ct)
				c.logger.Warn("collector abandoned at run deadline",
					zap.String("collector", col.Name()))
			}
			return c.merge(collected, rank)
		}
	}
	return c.merge(collected, rank)
}

func containsResult(results []taskResult, name string) bool {
	for _, r := range results {
		if r.collector.Name() == name {
			return true
		}
	}
	return false
}

// selectCollectors applies availability, then the deny list, then the allow
// list. It returns the runnable collectors in registration order plus skip
// traces for everything else.
func (c *Coordinator) selectCollectors(statuses []availability.Status, opts Options) ([]pulse.Collector, []*trace.CollectorTrace) {
	available := make(map[string]availability.Status, len(statuses))
	for _, s := range statuses {
		available[s.Collector] = s
	}
	allowed := toSet(opts.Allow)
	denied := toSet(opts.Deny)

	var selected []pulse.Collector
	var skipped []*trace.CollectorTrace
	for _, col := range c.collectors {
		name := col.Name()
		status, probed := available[name]
		switch {
		case probed && !status.Available:
			reason := "missing credentials"
			if len(status.MissingKeys) > 0 {
				reason = "missing " + strings.Join(status.MissingKeys, ", ")
			}
			skipped = append(skipped, trace.NewSkippedTrace(name, col.Type(), reason))
		case denied[strings.ToLower(name)]:
			skipped = append(skipped, trace.NewSkippedTrace(name, col.Type(), "excluded by request"))
		case len(allowed) > 0 && !allowed[strings.ToLower(name)]:
			skipped = append(skipped, trace.NewSkippedTrace(name, col.Type(), "not in requested collector list"))
		default:
			selected = append(selected, col)
		}
	}
	return selected, skipped
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			set[n] = true
		}
	}
	return set
}

// runOne drives a single collector through its attempts. Errors retry with a
// linearly increasing backoff; timeouts do not.
func (c *Coordinator) runOne(
	ctx context.Context,
	col pulse.Collector,
	req pulse.CollectRequest,
	timeout time.Duration,
	retries int,
) taskResult {
	ct := trace.NewCollectorTrace(col.Name(), col.Type())
	ct.Start(c.clock.Now())
	tctx := trace.WithRecorder(ctx, ct)

	var result pulse.CollectorResult
	timedOut := false
	for attempt := 0; ; attempt++ {
		ct.AddAttempt()
		result, timedOut = c.attempt(tctx, col, req, timeout)
		if result.Err == nil || timedOut {
			break
		}
		if attempt >= retries || ctx.Err() != nil {
			break
		}
		c.logger.Debug("retrying collector",
			zap.String("collector", col.Name()),
			zap.Int("attempt", attempt+1),
			zap.Error(result.Err))
		select {
		case <-time.After(time.Duration(attempt+1) * backoffStep):
		case <-ctx.Done():
		}
	}

	errText := ""
	outcome := "success"
	if timedOut {
		errText = fmt.Sprintf("timed out after %s", timeout)
		outcome = "timeout"
		result = pulse.CollectorResult{}
	} else if result.Err != nil {
		errText = result.Err.Error()
		outcome = "error"
	}
	ct.Complete(c.clock.Now(), len(result.Items), errText == "", errText)
	metrics.CollectorDuration.WithLabelValues(col.Name(), outcome).
		Observe(float64(ct.DurationMS) / 1000)
	metrics.ItemsCollected.WithLabelValues(col.Name()).Add(float64(len(result.Items)))
	if errText != "" {
		c.logger.Warn("collector failed",
			zap.String("collector", col.Name()),
			zap.String("error", errText))
	}

	return taskResult{collector: col, result: result, ct: ct, timedOut: timedOut}
}

// attempt runs one collector invocation under its own timeout. The collector
// goroutine is abandoned, not joined, when the timeout fires: a collector
// that ignores cancellation only wastes its own goroutine, and its late
// result is dropped on the buffered channel.
func (c *Coordinator) attempt(
	ctx context.Context,
	col pulse.Collector,
	req pulse.CollectRequest,
	timeout time.Duration,
) (pulse.CollectorResult, bool) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan pulse.CollectorResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- pulse.FailedResult(fmt.Errorf("collector panic: %v", r), nil, nil)
			}
		}()
		done <- col.Collect(actx, req)
	}()

	select {
	case result := <-done:
		if result.Err != nil && errors.Is(result.Err, context.DeadlineExceeded) && actx.Err() != nil {
			return pulse.CollectorResult{}, true
		}
		return result, false
	case <-actx.Done():
		if errors.Is(actx.Err(), context.DeadlineExceeded) {
			return pulse.CollectorResult{}, true
		}
		return pulse.FailedResult(actx.Err(), nil, nil), false
	}
}

// merge flattens successful results into one item and source list, stamping
// each item with its collector's rank.
func (c *Coordinator) merge(results []taskResult, rank map[string]int) ([]pulse.Item, []pulse.Source, error) {
	sort.Slice(results, func(i, j int) bool {
		return rank[results[i].collector.Name()] < rank[results[j].collector.Name()]
	})

	var items []pulse.Item
	var sources []pulse.Source
	for _, r := range results {
		if r.result.Err != nil || r.timedOut {
			continue
		}
		for _, item := range r.result.Items {
			item.CollectorRank = rank[r.collector.Name()]
			items = append(items, item)
		}
		sources = append(sources, r.result.Sources...)
	}
	return items, sources, nil
}
