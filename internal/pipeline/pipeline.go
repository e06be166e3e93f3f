// Package pipeline turns the coordinator's raw merged item set into the
// final ordered sequence: date filter, deduplication, scoring, a fully
// deterministic sort, then the optional post-sort limit.
package pipeline

import (
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/moltpulse/moltpulse/internal/profile"
	"github.com/moltpulse/moltpulse/internal/pulse"
	"github.com/moltpulse/moltpulse/internal/trace"
)

// Component weights. Fixed: tuning happens through the profile's keywords
// and the scoring options, not here.
const (
	weightRelevance  = 0.45
	weightRecency    = 0.25
	weightEngagement = 0.30
)

// Relevance adjustments applied on top of the collector's estimate.
const (
	baseRelevance = 0.5
	keywordStep   = 0.1
	filterStep    = 0.2
	hoursPerDay   = 24
	defaultLimit  = 0 // no truncation
)

// Options are the tunable scoring inputs.
type Options struct {
	// RecencyFloor is the minimum recency sub-score; very old items decay
	// to this epsilon instead of zero.
	RecencyFloor float64
	// NeutralEngagement is assumed for items whose source never reports
	// engagement, so RSS-style sources are not penalized.
	NeutralEngagement float64
	// HalfLifeDays controls the exponential recency decay.
	HalfLifeDays float64
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{RecencyFloor: 0.05, NeutralEngagement: 0.35, HalfLifeDays: 30}
}

// Request carries one pipeline invocation's inputs.
type Request struct {
	Profile *profile.Profile
	From    time.Time
	To      time.Time
	// Limit truncates the sorted output when positive. It is applied after
	// sorting only, so it never changes which duplicate survives.
	Limit int
}

// Pipeline processes merged item sets. Safe for concurrent use.
type Pipeline struct {
	opts   Options
	logger *zap.Logger
}

// New builds a Pipeline with the given scoring options.
func New(opts Options, logger *zap.Logger) *Pipeline {
	if opts.HalfLifeDays <= 0 {
		opts.HalfLifeDays = 30
	}
	return &Pipeline{opts: opts, logger: logger}
}

// Process runs the full stage sequence and reports stage counts and the
// resulting score range.
func (p *Pipeline) Process(items []pulse.Item, req Request) ([]pulse.Item, trace.ProcessingSummary) {
	summary := trace.ProcessingSummary{ItemsBeforeFilter: len(items)}

	items = p.filterByDate(items, req.From, req.To)
	summary.ItemsAfterFilter = len(items)

	items = p.dedupe(items)
	summary.ItemsAfterDedupe = len(items)

	p.score(items, req)
	p.sortItems(items, req.Profile)

	if req.Limit > defaultLimit && len(items) > req.Limit {
		items = items[:req.Limit]
	}
	summary.ItemsDelivered = len(items)

	for i, item := range items {
		if i == 0 || item.Score < summary.ScoreMin {
			summary.ScoreMin = item.Score
		}
		if item.Score > summary.ScoreMax {
			summary.ScoreMax = item.Score
		}
	}

	p.logger.Debug("pipeline complete",
		zap.Int("before_filter", summary.ItemsBeforeFilter),
		zap.Int("after_filter", summary.ItemsAfterFilter),
		zap.Int("after_dedupe", summary.ItemsAfterDedupe),
		zap.Int("delivered", summary.ItemsDelivered))
	return items, summary
}

// filterByDate drops items outside [from, to], bounds inclusive. Items
// without a timestamp are kept: a missing date is treated as in-range rather
// than failing the run.
func (p *Pipeline) filterByDate(items []pulse.Item, from, to time.Time) []pulse.Item {
	out := items[:0:0]
	for _, item := range items {
		if item.PublishedAt.IsZero() {
			out = append(out, item)
			continue
		}
		if item.PublishedAt.Before(from) || item.PublishedAt.After(to) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// dedupe keeps one survivor per dedup key: the item with the longest
// non-empty snippet, ties broken by earliest timestamp (missing counts as
// latest), then by collector registration order, then by ID. The choice is a
// pure function of the input set, so repeated runs pick the same survivor.
func (p *Pipeline) dedupe(items []pulse.Item) []pulse.Item {
	survivors := make(map[string]pulse.Item, len(items))
	var order []string
	for _, item := range items {
		key := item.DedupKey()
		current, seen := survivors[key]
		if !seen {
			survivors[key] = item
			order = append(order, key)
			continue
		}
		if beats(item, current) {
			survivors[key] = item
		}
	}

	out := make([]pulse.Item, 0, len(order))
	for _, key := range order {
		out = append(out, survivors[key])
	}
	return out
}

// beats reports whether a should replace b as the dedup survivor.
func beats(a, b pulse.Item) bool {
	if la, lb := len(a.Snippet), len(b.Snippet); la != lb {
		return la > lb
	}
	at, bt := dedupTime(a), dedupTime(b)
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	if a.CollectorRank != b.CollectorRank {
		return a.CollectorRank < b.CollectorRank
	}
	return a.ID < b.ID
}

// dedupTime orders missing timestamps after every real one.
func dedupTime(item pulse.Item) time.Time {
	if item.PublishedAt.IsZero() {
		return time.Unix(1<<62-1, 0)
	}
	return item.PublishedAt
}

// score computes sub-scores and the weighted total for every item in place.
// All sub-scores are clamped to [0,1] before combination; the total needs no
// re-clamp since the weights sum to 1.
func (p *Pipeline) score(items []pulse.Item, req Request) {
	engagement := p.normalizeEngagement(items)
	for i := range items {
		item := &items[i]
		item.Subs = pulse.SubScores{
			Relevance:  clamp01(p.relevance(item, req.Profile)),
			Recency:    clamp01(p.recency(item.PublishedAt, req.To)),
			Engagement: clamp01(engagement[i]),
		}
		item.Score = weightRelevance*item.Subs.Relevance +
			weightRecency*item.Subs.Recency +
			weightEngagement*item.Subs.Engagement
		item.Scored = true
	}
}

// relevance starts from the collector's estimate (or the neutral base when
// the collector reported none), then applies the profile's boost and filter
// keywords against the item text.
func (p *Pipeline) relevance(item *pulse.Item, prof *profile.Profile) float64 {
	rel := item.Relevance
	if rel <= 0 {
		rel = baseRelevance
	}
	if prof == nil {
		return rel
	}
	text := strings.ToLower(item.Title + " " + item.Snippet)
	for _, kw := range prof.BoostKeywords() {
		if strings.Contains(text, strings.ToLower(kw)) {
			rel += keywordStep
		}
	}
	for _, kw := range prof.FilterKeywords() {
		if strings.Contains(text, strings.ToLower(kw)) {
			rel -= filterStep
		}
	}
	return rel
}

// recency decays exponentially with the configured half-life, measured back
// from the window's upper bound. Undated items and items older than the
// decay window floor at the epsilon instead of zero.
func (p *Pipeline) recency(publishedAt, to time.Time) float64 {
	if publishedAt.IsZero() {
		return p.opts.RecencyFloor
	}
	ageDays := to.Sub(publishedAt).Hours() / hoursPerDay
	if ageDays < 0 {
		ageDays = 0
	}
	decay := math.Pow(0.5, ageDays/p.opts.HalfLifeDays)
	return math.Max(decay, p.opts.RecencyFloor)
}

// normalizeEngagement maps raw engagement onto [0,1] by log-scaling against
// the batch maximum. Items without a signal get the neutral constant.
func (p *Pipeline) normalizeEngagement(items []pulse.Item) []float64 {
	maxLog := 0.0
	for _, item := range items {
		if item.HasEngagement {
			if l := math.Log1p(math.Max(item.Engagement, 0)); l > maxLog {
				maxLog = l
			}
		}
	}

	out := make([]float64, len(items))
	for i, item := range items {
		switch {
		case !item.HasEngagement:
			out[i] = p.opts.NeutralEngagement
		case maxLog == 0:
			out[i] = p.opts.NeutralEngagement
		default:
			out[i] = math.Log1p(math.Max(item.Engagement, 0)) / maxLog
		}
	}
	return out
}

// sortItems orders by score descending, then recency descending, then source
// priority ascending, then ID ascending. The final ID tie-break makes the
// order total: no ties survive to the output.
func (p *Pipeline) sortItems(items []pulse.Item, prof *profile.Profile) {
	priorities := map[string]int{}
	if prof != nil {
		priorities = prof.SourcePriority()
	}
	priorityOf := func(item pulse.Item) int {
		if pr, ok := priorities[item.SourceName]; ok {
			return pr
		}
		return profile.DefaultSourcePriority
	}

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Subs.Recency != b.Subs.Recency {
			return a.Subs.Recency > b.Subs.Recency
		}
		if pa, pb := priorityOf(a), priorityOf(b); pa != pb {
			return pa < pb
		}
		return a.ID < b.ID
	})
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
