// Package metrics exposes Prometheus instrumentation for runs, collectors,
// and the shared HTTP client. All collectors register on the default
// registry; the API server serves them at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsStarted counts orchestrated runs by report type.
	RunsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moltpulse",
		Name:      "runs_started_total",
		Help:      "Number of collection runs started.",
	}, []string{"report_type", "depth"})

	// RunsCompleted counts finished runs by outcome.
	RunsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moltpulse",
		Name:      "runs_completed_total",
		Help:      "Number of collection runs completed, by result.",
	}, []string{"report_type", "result"})

	// RunDuration observes end-to-end run latency.
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "moltpulse",
		Name:      "run_duration_seconds",
		Help:      "End-to-end run duration.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	}, []string{"report_type"})

	// CollectorDuration observes per-collector wall time, including retries.
	CollectorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "moltpulse",
		Name:      "collector_duration_seconds",
		Help:      "Wall time spent per collector, retries included.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"collector", "outcome"})

	// ItemsCollected counts items each collector returned before filtering.
	ItemsCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moltpulse",
		Name:      "items_collected_total",
		Help:      "Items returned by collectors before filtering.",
	}, []string{"collector"})

	// ItemsDelivered counts items that survived the full pipeline.
	ItemsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moltpulse",
		Name:      "items_delivered_total",
		Help:      "Items delivered after filter, dedupe, score, and limit.",
	}, []string{"report_type"})

	// CacheOps counts response-cache hits and misses per source.
	CacheOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moltpulse",
		Name:      "cache_ops_total",
		Help:      "Response cache lookups by source and result.",
	}, []string{"source", "result"})

	// APIRequests counts outbound API requests by source and status class.
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moltpulse",
		Name:      "api_requests_total",
		Help:      "Outbound API requests by source and status class.",
	}, []string{"source", "status"})

	// RateLimitDelay observes time spent waiting on per-source token buckets.
	RateLimitDelay = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "moltpulse",
		Name:      "ratelimit_delay_seconds",
		Help:      "Time spent waiting for a rate-limit token.",
		Buckets:   []float64{.001, .01, .1, .5, 1, 5},
	}, []string{"source"})
)
