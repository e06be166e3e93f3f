// Package cache provides the response cache shared by all collectors. Entries
// live in an in-process store and are optionally written through to a
// directory on disk so repeated CLI runs within the TTL window reuse API
// responses instead of spending quota.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/moltpulse/moltpulse/internal/hash/sha256"
)

// Key derives a stable cache key from the given parts. Parts are joined with
// "|" before hashing so ("a","bc") and ("ab","c") never collide.
func Key(parts ...string) string {
	return sha256.Short([]byte(strings.Join(parts, "|")))
}

// fileEntry is the on-disk envelope. Payload is a plain byte slice so
// encoding/json base64s it; non-JSON bodies (RSS XML, scraped HTML) survive
// the round trip.
type fileEntry struct {
	ExpiresAt time.Time `json:"expires_at"`
	Payload   []byte    `json:"payload"`
}

// Cache is a TTL cache with an optional file write-through layer. The zero
// value is not usable; construct with New.
type Cache struct {
	mem    *gocache.Cache
	dir    string
	ttl    time.Duration
	logger *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithDir enables the file write-through layer rooted at dir.
func WithDir(dir string) Option {
	return func(c *Cache) { c.dir = dir }
}

// WithLogger sets the logger used for non-fatal persistence failures.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New builds a cache whose entries expire after ttl.
func New(ttl time.Duration, opts ...Option) (*Cache, error) {
	c := &Cache{
		mem:    gocache.New(ttl, 2*ttl),
		ttl:    ttl,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dir != "" {
		if err := os.MkdirAll(c.dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory %s: %w", c.dir, err)
		}
	}
	return c, nil
}

// Get returns the cached payload for key, consulting memory first and the
// file layer second. The second return reports whether a live entry was
// found.
func (c *Cache) Get(key string) ([]byte, bool) {
	if v, ok := c.mem.Get(key); ok {
		return v.([]byte), true
	}
	if c.dir == "" {
		return nil, false
	}
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}
	var entry fileEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn("discarding corrupt cache file", zap.String("key", key), zap.Error(err))
		_ = os.Remove(c.path(key))
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		_ = os.Remove(c.path(key))
		return nil, false
	}
	// Promote so subsequent hits skip the disk read.
	c.mem.Set(key, entry.Payload, time.Until(entry.ExpiresAt))
	return entry.Payload, true
}

// Set stores payload under key. File persistence failures are logged, not
// returned: a broken disk must never fail a collection run.
func (c *Cache) Set(key string, payload []byte) {
	c.mem.Set(key, payload, c.ttl)
	if c.dir == "" {
		return
	}
	entry := fileEntry{
		ExpiresAt: time.Now().Add(c.ttl),
		Payload:   payload,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("encoding cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	if err := os.WriteFile(c.path(key), data, 0o644); err != nil {
		c.logger.Warn("persisting cache entry", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}
