package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/moltpulse/moltpulse/internal/cache"
	"github.com/moltpulse/moltpulse/internal/trace"
)

func TestClient_GetJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "bar", r.URL.Query().Get("foo"))
		w.Write([]byte(`{"count": 3}`))
	}))
	defer srv.Close()

	c := New(5 * time.Second)
	var out struct {
		Count int `json:"count"`
	}
	err := c.GetJSON(context.Background(), Request{
		Source: "test",
		URL:    srv.URL,
		Query:  url.Values{"foo": {"bar"}},
	}, &out)
	require.NoError(t, err)
	require.Equal(t, 3, out.Count)
}

func TestClient_StatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(5 * time.Second)
	_, err := c.Do(context.Background(), Request{Source: "test", URL: srv.URL})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusTooManyRequests, statusErr.Status)
}

func TestClient_CacheHitSkipsNetwork(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"v":1}`))
	}))
	defer srv.Close()

	store, err := cache.New(time.Minute)
	require.NoError(t, err)
	c := New(5*time.Second, WithCache(store))

	req := Request{Source: "test", URL: srv.URL, CacheKey: cache.Key("test", "k")}
	_, err = c.Do(context.Background(), req)
	require.NoError(t, err)
	_, err = c.Do(context.Background(), req)
	require.NoError(t, err)
	require.EqualValues(t, 1, calls.Load())
}

func TestClient_NoCacheBypassesReadButWrites(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"v":1}`))
	}))
	defer srv.Close()

	store, err := cache.New(time.Minute)
	require.NoError(t, err)
	c := New(5*time.Second, WithCache(store))

	key := cache.Key("test", "k")
	_, err = c.Do(context.Background(), Request{Source: "test", URL: srv.URL, CacheKey: key, NoCache: true})
	require.NoError(t, err)
	_, err = c.Do(context.Background(), Request{Source: "test", URL: srv.URL, CacheKey: key, NoCache: true})
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())

	// The bypassed reads still wrote through.
	_, ok := store.Get(key)
	require.True(t, ok)
}

func TestClient_RecordsTraceCalls(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ct := trace.NewCollectorTrace("test", "news")
	ctx := trace.WithRecorder(context.Background(), ct)

	store, err := cache.New(time.Minute)
	require.NoError(t, err)
	c := New(5*time.Second, WithCache(store))
	key := cache.Key("test", "trace")

	_, err = c.Do(ctx, Request{Source: "test", URL: srv.URL, CacheKey: key})
	require.NoError(t, err)
	_, err = c.Do(ctx, Request{Source: "test", URL: srv.URL, CacheKey: key})
	require.NoError(t, err)

	require.Equal(t, 2, ct.CallCount())
	require.False(t, ct.APICalls[0].Cached)
	require.True(t, ct.APICalls[1].Cached)
}
