package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKey_Deterministic(t *testing.T) {
	t.Parallel()

	require.Equal(t, Key("news", "openai", "2024-01-01"), Key("news", "openai", "2024-01-01"))
	require.Len(t, Key("news", "openai"), 16)

	// Joining with a separator keeps adjacent parts from colliding.
	require.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}

func TestCache_MemoryRoundTrip(t *testing.T) {
	t.Parallel()

	c, err := New(time.Minute)
	require.NoError(t, err)

	_, ok := c.Get("missing")
	require.False(t, ok)

	c.Set("k", []byte(`{"ok":true}`))
	got, ok := c.Get("k")
	require.True(t, ok)
	require.JSONEq(t, `{"ok":true}`, string(got))
}

func TestCache_FileWriteThrough(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(time.Minute, WithDir(dir))
	require.NoError(t, err)

	c.Set("k", []byte(`[1,2,3]`))

	// A fresh cache sharing the directory sees the entry via the file layer.
	c2, err := New(time.Minute, WithDir(dir))
	require.NoError(t, err)
	got, ok := c2.Get("k")
	require.True(t, ok)
	require.JSONEq(t, `[1,2,3]`, string(got))
}

func TestCache_FileWriteThroughKeepsNonJSONPayloads(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(time.Minute, WithDir(dir))
	require.NoError(t, err)

	feed := `<?xml version="1.0"?><rss version="2.0"><channel><title>Fintech Weekly</title></channel></rss>`
	c.Set("feed", []byte(feed))

	c2, err := New(time.Minute, WithDir(dir))
	require.NoError(t, err)
	got, ok := c2.Get("feed")
	require.True(t, ok)
	require.Equal(t, feed, string(got))
}

func TestCache_ExpiredFileEntryIsDropped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(10*time.Millisecond, WithDir(dir))
	require.NoError(t, err)
	c.Set("k", []byte(`"v"`))

	time.Sleep(25 * time.Millisecond)

	c2, err := New(10*time.Millisecond, WithDir(dir))
	require.NoError(t, err)
	_, ok := c2.Get("k")
	require.False(t, ok)
	_, statErr := os.Stat(filepath.Join(dir, "k.json"))
	require.True(t, os.IsNotExist(statErr))
}

func TestCache_CorruptFileEntryIsDropped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "k.json"), []byte("not json"), 0o644))

	c, err := New(time.Minute, WithDir(dir))
	require.NoError(t, err)
	_, ok := c.Get("k")
	require.False(t, ok)
}
