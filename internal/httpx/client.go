// Package httpx is the outbound HTTP layer shared by collectors. It layers
// per-source rate limiting, response caching, and API-call tracing over a
// plain http.Client so individual collectors only describe the request.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/moltpulse/moltpulse/internal/metrics"
	"github.com/moltpulse/moltpulse/internal/pulse"
	"github.com/moltpulse/moltpulse/internal/ratelimit"
	"github.com/moltpulse/moltpulse/internal/trace"
)

const maxBodyBytes = 10 << 20

// StatusError reports a non-2xx response.
type StatusError struct {
	Status int
	URL    string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s: %s", e.Status, e.URL, e.Body)
}

// Request describes one outbound API call. CacheKey empty means the response
// is never cached; NoCache skips the cache read but still writes through.
type Request struct {
	Source   string
	Method   string
	URL      string
	Query    url.Values
	Headers  map[string]string
	Body     any
	CacheKey string
	NoCache  bool
}

// Client executes Requests. Construct with New; the zero value is unusable.
type Client struct {
	http      *http.Client
	cache     pulse.Cache
	limiter   *ratelimit.Limiter
	logger    *zap.Logger
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithCache enables response caching for requests that carry a CacheKey.
func WithCache(c pulse.Cache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithLimiter enables per-source rate limiting.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(cl *Client) { cl.limiter = l }
}

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cl *Client) { cl.logger = logger }
}

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) { cl.userAgent = ua }
}

// New builds a Client with the given request timeout.
func New(timeout time.Duration, opts ...Option) *Client {
	cl := &Client{
		http:      &http.Client{Timeout: timeout},
		logger:    zap.NewNop(),
		userAgent: "moltpulse/1.0",
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

// GetJSON executes req and decodes the response body into out. A cache hit
// skips the network entirely but is still recorded on the collector trace
// with cached=true.
func (c *Client) GetJSON(ctx context.Context, req Request, out any) error {
	data, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", req.URL, err)
	}
	return nil
}

// Do executes req and returns the raw response body.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	fullURL := req.URL
	if len(req.Query) > 0 {
		fullURL = req.URL + "?" + req.Query.Encode()
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	if c.cache != nil && req.CacheKey != "" && !req.NoCache {
		if data, ok := c.cache.Get(req.CacheKey); ok {
			metrics.CacheOps.WithLabelValues(req.Source, "hit").Inc()
			trace.Record(ctx, trace.APICall{
				Endpoint:  req.URL,
				Method:    method,
				Status:    http.StatusOK,
				Timestamp: time.Now().UTC(),
				Cached:    true,
			})
			return data, nil
		}
		metrics.CacheOps.WithLabelValues(req.Source, "miss").Inc()
	}

	if c.limiter != nil && req.Source != "" {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx, req.Source); err != nil {
			return nil, fmt.Errorf("rate limit wait for %s: %w", req.Source, err)
		}
		metrics.RateLimitDelay.WithLabelValues(req.Source).Observe(time.Since(waitStart).Seconds())
	}

	var bodyReader io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body for %s: %w", req.URL, err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", req.URL, err)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		trace.Record(ctx, trace.APICall{
			Endpoint:  req.URL,
			Method:    method,
			LatencyMS: latency.Milliseconds(),
			Timestamp: start.UTC(),
			Error:     err.Error(),
		})
		metrics.APIRequests.WithLabelValues(req.Source, "error").Inc()
		return nil, fmt.Errorf("requesting %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", req.URL, err)
	}

	call := trace.APICall{
		Endpoint:  req.URL,
		Method:    method,
		Status:    resp.StatusCode,
		LatencyMS: latency.Milliseconds(),
		Timestamp: start.UTC(),
	}
	metrics.APIRequests.WithLabelValues(req.Source, statusClass(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(data)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		call.Error = fmt.Sprintf("status %d", resp.StatusCode)
		trace.Record(ctx, call)
		c.logger.Debug("api request failed",
			zap.String("source", req.Source),
			zap.String("url", req.URL),
			zap.Int("status", resp.StatusCode))
		return nil, &StatusError{Status: resp.StatusCode, URL: req.URL, Body: snippet}
	}
	trace.Record(ctx, call)

	if c.cache != nil && req.CacheKey != "" {
		c.cache.Set(req.CacheKey, data)
	}
	return data, nil
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
