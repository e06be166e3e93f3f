// Package pulse defines core types shared across subsystems.
package pulse

import (
	"time"
)

// ItemType tags the closed set of item variants.
type ItemType string

// Item variants produced by collectors.
const (
	ItemNews      ItemType = "news"
	ItemFinancial ItemType = "financial"
	ItemSocial    ItemType = "social"
)

// Depth is a named collection preset controlling per-collector limits.
type Depth string

// Supported collection depths.
const (
	DepthQuick   Depth = "quick"
	DepthDefault Depth = "default"
	DepthDeep    Depth = "deep"
)

// DepthProfile maps a Depth to concrete per-collector limits.
type DepthProfile struct {
	MaxItems    int           `mapstructure:"max_items" json:"max_items"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
	TargetItems int           `mapstructure:"target_items" json:"target_items"`
}

// DepthTable resolves a Depth to its profile, falling back to DepthDefault.
type DepthTable map[Depth]DepthProfile

// Resolve returns the profile for the given depth, or the default profile
// when the depth is unknown.
func (t DepthTable) Resolve(d Depth) DepthProfile {
	if p, ok := t[d]; ok {
		return p
	}
	return t[DepthDefault]
}

// DefaultDepthTable mirrors the documented quick/default/deep presets.
func DefaultDepthTable() DepthTable {
	return DepthTable{
		DepthQuick:   {MaxItems: 10, Timeout: 30 * time.Second, TargetItems: 8},
		DepthDefault: {MaxItems: 25, Timeout: 60 * time.Second, TargetItems: 15},
		DepthDeep:    {MaxItems: 50, Timeout: 120 * time.Second, TargetItems: 30},
	}
}

// SubScores holds the clamped [0,1] component scores computed by the pipeline.
type SubScores struct {
	Relevance  float64 `json:"relevance"`
	Recency    float64 `json:"recency"`
	Engagement float64 `json:"engagement"`
}

// NewsDetail carries news-specific fields.
type NewsDetail struct {
	Categories []string `json:"categories,omitempty"`
	Entities   []string `json:"entities,omitempty"`
}

// FinancialDetail carries quote-specific fields.
type FinancialDetail struct {
	Symbol     string   `json:"symbol"`
	EntityName string   `json:"entity_name"`
	MetricType string   `json:"metric_type"`
	Value      float64  `json:"value"`
	ChangePct  *float64 `json:"change_pct,omitempty"`
}

// SocialDetail carries post-specific fields.
type SocialDetail struct {
	Platform     string `json:"platform"`
	AuthorName   string `json:"author_name"`
	AuthorHandle string `json:"author_handle"`
	Likes        int64  `json:"likes,omitempty"`
	Reposts      int64  `json:"reposts,omitempty"`
	Replies      int64  `json:"replies,omitempty"`
	Quotes       int64  `json:"quotes,omitempty"`
}

// Item is the canonical representation of one collected unit. Collectors
// create Items; after creation only the scoring fields (Subs, Score, Scored)
// are written, exactly once, by the processing pipeline.
type Item struct {
	ID         string   `json:"id"`
	Type       ItemType `json:"type"`
	Title      string   `json:"title"`
	URL        string   `json:"url"`
	SourceName string   `json:"source_name"`
	// PublishedAt is the publication or observation timestamp; the zero
	// value means the source did not report one.
	PublishedAt time.Time `json:"published_at,omitempty"`
	Snippet     string    `json:"snippet,omitempty"`
	// Engagement is the raw platform signal (likes, points, volume). Zero
	// with HasEngagement false means the source never reports engagement.
	Engagement    float64 `json:"engagement,omitempty"`
	HasEngagement bool    `json:"has_engagement,omitempty"`
	// Relevance is the collector's keyword-match strength estimate in [0,1].
	Relevance float64 `json:"relevance"`

	Subs   SubScores `json:"subs"`
	Score  float64   `json:"score"`
	Scored bool      `json:"scored"`

	// CollectorRank is the registration order of the originating collector,
	// assigned by the coordinator at merge time for deterministic dedup
	// tie-breaking.
	CollectorRank int `json:"-"`

	News      *NewsDetail      `json:"news,omitempty"`
	Financial *FinancialDetail `json:"financial,omitempty"`
	Social    *SocialDetail    `json:"social,omitempty"`
}

// Source is a citation target, many-to-one with Items.
type Source struct {
	Name     string    `json:"name"`
	URL      string    `json:"url"`
	Accessed time.Time `json:"accessed,omitempty"`
}

// CollectorResult is produced once per collector invocation. Err set means
// Items/Sources may be partial but are never nil; a nil Err with zero items
// means the source had nothing new.
type CollectorResult struct {
	Items   []Item
	Sources []Source
	Err     error
}

// OK reports whether the collection completed without error.
func (r CollectorResult) OK() bool {
	return r.Err == nil
}

// Merge appends the other result's items and sources.
func (r *CollectorResult) Merge(other CollectorResult) {
	r.Items = append(r.Items, other.Items...)
	r.Sources = append(r.Sources, other.Sources...)
}

// ResultOf builds a successful result, normalizing nil slices.
func ResultOf(items []Item, sources []Source) CollectorResult {
	if items == nil {
		items = []Item{}
	}
	if sources == nil {
		sources = []Source{}
	}
	return CollectorResult{Items: items, Sources: sources}
}

// FailedResult wraps an error, preserving whatever was salvaged before the
// failure.
func FailedResult(err error, items []Item, sources []Source) CollectorResult {
	res := ResultOf(items, sources)
	res.Err = err
	return res
}
