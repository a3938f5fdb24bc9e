// Package prompt implements the exact-match shortcut in front of the
// semantic cache: a TTL-bounded map keyed by the SHA-256 of the full
// prompt. It answers identical prompts without paying for an embedding;
// anything semantic is the SoA cache's job.
package prompt

import (
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Config tunes the shortcut cache. Zero values fall back to the defaults.
type Config struct {
	// MaxEntries bounds the cache; inserts beyond it are skipped until
	// expiry frees room.
	MaxEntries int

	// TTL is the per-entry lifetime.
	TTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxEntries <= 0 {
		c.MaxEntries = 100
	}
	if c.TTL <= 0 {
		c.TTL = time.Hour
	}
	return c
}

// Stats is a point-in-time snapshot of the shortcut cache.
type Stats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// Cache is the exact-match prompt cache.
type Cache struct {
	cfg   Config
	items *gocache.Cache

	hits   atomic.Int64
	misses atomic.Int64
}

// New builds a prompt cache.
func New(cfg Config) *Cache {
	cfg = cfg.withDefaults()
	return &Cache{
		cfg:   cfg,
		items: gocache.New(cfg.TTL, 2*cfg.TTL),
	}
}

// Get returns the cached response for an identical prompt, if any.
func (c *Cache) Get(prompt string) (string, bool) {
	v, found := c.items.Get(hashKey(prompt))
	if !found {
		c.misses.Add(1)
		return "", false
	}
	response, ok := v.(string)
	if !ok {
		c.misses.Add(1)
		return "", false
	}
	c.hits.Add(1)
	return response, true
}

// Set stores a response under the prompt's hash. When the cache is at
// capacity and the prompt is not already present, the insert is skipped;
// expiry frees room over time.
func (c *Cache) Set(prompt, response string) {
	key := hashKey(prompt)
	if _, exists := c.items.Get(key); !exists && c.items.ItemCount() >= c.cfg.MaxEntries {
		return
	}
	c.items.Set(key, response, gocache.DefaultExpiration)
}

// Clear drops every entry and resets the counters.
func (c *Cache) Clear() {
	c.items.Flush()
	c.hits.Store(0)
	c.misses.Store(0)
}

// Stats reports occupancy and hit counters.
func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Entries:    c.items.ItemCount(),
		MaxEntries: c.cfg.MaxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    rate,
	}
}

func hashKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])[:16]
}
