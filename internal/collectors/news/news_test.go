package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moltpulse/moltpulse/internal/httpx"
	"github.com/moltpulse/moltpulse/internal/profile"
	"github.com/moltpulse/moltpulse/internal/pulse"
)

type testClock struct{ now time.Time }

func (c testClock) Now() time.Time { return c.now }

func lookupOf(keys map[string]string) LookupFunc {
	return func(name string) (string, bool) {
		v, ok := keys[name]
		return v, ok
	}
}

func testProfile() *profile.Profile {
	return &profile.Profile{
		Name: "default",
		Domain: &profile.Domain{
			Name:     "advertising",
			Keywords: []string{"programmatic", "adtech"},
		},
	}
}

func collectRequest() pulse.CollectRequest {
	return pulse.CollectRequest{
		Profile: testProfile(),
		From:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:      time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC),
		Limits:  pulse.DepthProfile{MaxItems: 25, Timeout: time.Minute},
	}
}

func TestCollect_NewsDataPreferred(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "nd-key", r.URL.Query().Get("apikey"))
		require.Contains(t, r.URL.Query().Get("q"), "programmatic")
		w.Write([]byte(`{
			"status": "success",
			"results": [
				{"title": "Programmatic spend rises", "link": "https://example.com/a",
				 "description": "Adtech budgets grow.", "pubDate": "2024-01-05 10:30:00",
				 "source_id": "adweek", "category": ["business"]},
				{"title": "", "link": "https://example.com/skip"}
			]
		}`))
	}))
	defer srv.Close()

	c := New(httpx.New(5*time.Second), lookupOf(map[string]string{KeyNewsData: "nd-key", KeyNewsAPI: "na-key"}),
		testClock{now: time.Now()}, zap.NewNop(), WithBaseURLs(srv.URL, "http://unused"))

	result := c.Collect(context.Background(), collectRequest())
	require.NoError(t, result.Err)
	require.Len(t, result.Items, 1)

	item := result.Items[0]
	require.Equal(t, pulse.ItemNews, item.Type)
	require.Equal(t, "adweek", item.SourceName)
	require.Equal(t, time.Date(2024, 1, 5, 10, 30, 0, 0, time.UTC), item.PublishedAt)
	// Base 0.5 plus matches for both "programmatic" and "adtech".
	require.InDelta(t, 0.7, item.Relevance, 1e-9)
	require.Len(t, result.Sources, 1)
}

func TestCollect_NewsAPIFallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "na-key", r.URL.Query().Get("apiKey"))
		require.Equal(t, "2024-01-01", r.URL.Query().Get("from"))
		w.Write([]byte(`{
			"status": "ok",
			"articles": [
				{"title": "Adtech deal closes", "url": "https://example.com/b",
				 "description": "Details.", "publishedAt": "2024-01-03T09:00:00Z",
				 "source": {"name": "Campaign"}}
			]
		}`))
	}))
	defer srv.Close()

	c := New(httpx.New(5*time.Second), lookupOf(map[string]string{KeyNewsAPI: "na-key"}),
		testClock{now: time.Now()}, zap.NewNop(), WithBaseURLs("http://unused", srv.URL))

	result := c.Collect(context.Background(), collectRequest())
	require.NoError(t, result.Err)
	require.Len(t, result.Items, 1)
	require.Equal(t, "Campaign", result.Items[0].SourceName)
	require.Equal(t, "NewsAPI", result.Sources[0].Name)
}

func TestCollect_MaxItemsCap(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"status": "success",
			"results": [
				{"title": "One", "link": "https://example.com/1"},
				{"title": "Two", "link": "https://example.com/2"},
				{"title": "Three", "link": "https://example.com/3"}
			]
		}`))
	}))
	defer srv.Close()

	c := New(httpx.New(5*time.Second), lookupOf(map[string]string{KeyNewsData: "k"}),
		testClock{now: time.Now()}, zap.NewNop(), WithBaseURLs(srv.URL, "http://unused"))

	req := collectRequest()
	req.Limits.MaxItems = 2
	result := c.Collect(context.Background(), req)
	require.NoError(t, result.Err)
	require.Len(t, result.Items, 2)
}

func TestCollect_UpstreamErrorReported(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(httpx.New(5*time.Second), lookupOf(map[string]string{KeyNewsData: "k"}),
		testClock{now: time.Now()}, zap.NewNop(), WithBaseURLs(srv.URL, "http://unused"))

	result := c.Collect(context.Background(), collectRequest())
	require.Error(t, result.Err)
	require.NotNil(t, result.Items)
	require.Empty(t, result.Items)
}

func TestCollect_MalformedPayloadDegrades(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	c := New(httpx.New(5*time.Second), lookupOf(map[string]string{KeyNewsData: "k"}),
		testClock{now: time.Now()}, zap.NewNop(), WithBaseURLs(srv.URL, "http://unused"))

	result := c.Collect(context.Background(), collectRequest())
	require.Error(t, result.Err)
}
