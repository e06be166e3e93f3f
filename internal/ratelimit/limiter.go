// Package ratelimit throttles outbound API traffic per source so a run never
// burns through a provider's quota. Each source gets its own token bucket;
// unknown sources fall back to the default rate.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// SourceLimit overrides the default rate for one source.
type SourceLimit struct {
	RequestsPerSecond float64
	Burst             int
}

// Limiter hands out token buckets keyed by source name. Safe for concurrent
// use.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*rate.Limiter
	defRate   rate.Limit
	defBurst  int
	overrides map[string]SourceLimit
}

// New builds a limiter with the given default rate and per-source overrides.
// A non-positive requestsPerSecond disables throttling entirely.
func New(requestsPerSecond float64, burst int, overrides map[string]SourceLimit) *Limiter {
	if burst < 1 {
		burst = 1
	}
	defRate := rate.Inf
	if requestsPerSecond > 0 {
		defRate = rate.Limit(requestsPerSecond)
	}
	return &Limiter{
		buckets:   make(map[string]*rate.Limiter),
		defRate:   defRate,
		defBurst:  burst,
		overrides: overrides,
	}
}

// Wait blocks until the source's bucket has a token or ctx is done.
func (l *Limiter) Wait(ctx context.Context, source string) error {
	return l.bucket(source).Wait(ctx)
}

// Allow reports whether a request to source may proceed right now, consuming
// a token when it does.
func (l *Limiter) Allow(source string) bool {
	return l.bucket(source).Allow()
}

func (l *Limiter) bucket(source string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[source]; ok {
		return b
	}
	r, burst := l.defRate, l.defBurst
	if o, ok := l.overrides[source]; ok {
		if o.RequestsPerSecond > 0 {
			r = rate.Limit(o.RequestsPerSecond)
		}
		if o.Burst > 0 {
			burst = o.Burst
		}
	}
	b := rate.NewLimiter(r, burst)
	l.buckets[source] = b
	return b
}
