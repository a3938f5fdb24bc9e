// Package soa implements a semantic response cache over a struct-of-arrays
// layout: all embeddings live in one preallocated column-major float32 matrix
// so a lookup scans contiguous memory instead of chasing per-entry pointers.
// Lookups embed the prompt, compute cosine similarity against every active
// column, and hit when the best score clears the configured threshold.
package soa

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blueberrycongee/inferd/internal/embedding"
	"github.com/blueberrycongee/inferd/pkg/types"
)

// degenerateNorm is the cutoff below which a vector is treated as zero and
// excluded from similarity scoring.
const degenerateNorm = 1e-8

// previewBytes is how much of the original prompt is retained per entry.
const previewBytes = 200

// snapshotTimeout bounds the Redis round trips during restore at startup.
const snapshotTimeout = 5 * time.Second

// Entry is the metadata for one occupied cache slot. The embedding itself
// lives in the cache's shared matrix, not here.
type Entry struct {
	PromptHash    string
	PromptPreview string
	Response      string
	CreatedAt     float64 // unix seconds

	hits atomic.Int64
}

// HitCount reports how many lookups this entry has served.
func (e *Entry) HitCount() int64 {
	return e.hits.Load()
}

// LookupResult is the outcome of a cache lookup. Similarity carries the best
// cosine score even on a miss so callers can observe near misses.
type LookupResult struct {
	Response   string
	Hit        bool
	Similarity float64
}

// Cache is a fixed-capacity semantic cache. All embeddings are stored in a
// single Dimension*MaxEntries float32 slice where column i (the contiguous
// range [i*dim, (i+1)*dim)) holds the embedding of entry i. Norms are
// precomputed per column so a lookup costs one pass of multiply-adds.
type Cache struct {
	embedder embedding.Embedder
	snapshot *RedisSnapshot
	logger   *slog.Logger

	dim           int
	maxEntries    int
	threshold     float64
	hitProtection float64 // seconds of longevity per hit

	mu      sync.RWMutex
	columns []float32 // dim*maxEntries, column-major
	norms   []float32 // one L2 norm per column
	entries []*Entry  // nil above n
	n       int       // occupied prefix length

	now func() time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	inserts   atomic.Int64
	evictions atomic.Int64
	errors    atomic.Int64
}

// Option customizes cache construction.
type Option func(*Cache)

// WithLogger sets the logger used for soft failures such as snapshot errors.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithSnapshot attaches a Redis snapshot. The cache restores from it during
// construction and rewrites it after every mutation.
func WithSnapshot(snapshot *RedisSnapshot) Option {
	return func(c *Cache) {
		c.snapshot = snapshot
	}
}

// New builds a semantic cache around the given embedder. The embedder must
// report the same dimension the cache is configured with, otherwise the
// shared matrix layout would not line up.
func New(embedder embedding.Embedder, cfg Config, opts ...Option) (*Cache, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	cfg = cfg.withDefaults()
	if got := embedder.Dimension(); got != cfg.Dimension {
		return nil, fmt.Errorf("embedder dimension %d does not match cache dimension %d", got, cfg.Dimension)
	}

	c := &Cache{
		embedder:      embedder,
		dim:           cfg.Dimension,
		maxEntries:    cfg.MaxEntries,
		threshold:     cfg.SimilarityThreshold,
		hitProtection: cfg.HitProtection.Seconds(),
		columns:       make([]float32, cfg.Dimension*cfg.MaxEntries),
		norms:         make([]float32, cfg.MaxEntries),
		entries:       make([]*Entry, cfg.MaxEntries),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	if c.snapshot != nil {
		ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		defer cancel()
		if err := c.restore(ctx); err != nil {
			c.logger.Warn("semantic cache snapshot restore failed, starting empty",
				"error", err)
		}
	}
	return c, nil
}

// Lookup embeds the prompt and scans the active columns for the closest
// entry. A miss still reports the best similarity found. Embedding failures
// are returned to the caller but recorded as a miss so the cache never blocks
// a request it cannot score.
func (c *Cache) Lookup(ctx context.Context, prompt string) (LookupResult, error) {
	if prompt == "" {
		c.misses.Add(1)
		return LookupResult{}, nil
	}

	// Embedding may call out to a model server, keep it outside the lock.
	query, err := c.embedder.Embed(ctx, prompt)
	if err != nil {
		c.errors.Add(1)
		c.misses.Add(1)
		return LookupResult{}, fmt.Errorf("embed query: %w", err)
	}
	if len(query) != c.dim {
		c.errors.Add(1)
		c.misses.Add(1)
		return LookupResult{}, fmt.Errorf("query embedding has dimension %d, want %d", len(query), c.dim)
	}

	c.mu.RLock()
	best, bestSim := c.bestMatch(query)
	var res LookupResult
	if best >= 0 && bestSim >= c.threshold {
		e := c.entries[best]
		e.hits.Add(1)
		res = LookupResult{Response: e.Response, Hit: true, Similarity: clampSimilarity(bestSim)}
	} else {
		res = LookupResult{Similarity: clampSimilarity(bestSim)}
	}
	c.mu.RUnlock()

	if res.Hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return res, nil
}

// bestMatch returns the index and raw cosine similarity of the closest active
// entry, or (-1, 0) when nothing qualifies. Zero-norm columns and zero-norm
// queries never match anything. Callers must hold at least a read lock.
func (c *Cache) bestMatch(query []float32) (int, float64) {
	if c.n == 0 {
		return -1, 0
	}
	qNorm := l2Norm(query)
	if qNorm <= degenerateNorm {
		return -1, 0
	}

	best := -1
	bestSim := 0.0
	for i := 0; i < c.n; i++ {
		norm := float64(c.norms[i])
		if norm <= degenerateNorm {
			continue
		}
		col := c.columns[i*c.dim : (i+1)*c.dim]
		var dot float64
		for j, q := range query {
			dot += float64(q) * float64(col[j])
		}
		if sim := dot / (qNorm * norm); sim > bestSim {
			bestSim = sim
			best = i
		}
	}
	return best, bestSim
}

// Insert embeds the prompt and stores the response. An existing entry with
// the same prompt hash is overwritten in place, so concurrent inserts of the
// same prompt settle on a single slot with the last writer winning. When the
// cache is full the entry with the lowest protected age is evicted. Returns
// the slot index the entry landed in, or -1 when the insert was skipped.
func (c *Cache) Insert(ctx context.Context, prompt, response string) (int, error) {
	if prompt == "" || response == "" {
		return -1, nil
	}

	vec, err := c.embedder.Embed(ctx, prompt)
	if err != nil {
		c.errors.Add(1)
		return -1, fmt.Errorf("embed prompt: %w", err)
	}
	if len(vec) != c.dim {
		c.errors.Add(1)
		return -1, fmt.Errorf("prompt embedding has dimension %d, want %d", len(vec), c.dim)
	}

	hash := hashPrompt(prompt)
	entry := &Entry{
		PromptHash:    hash,
		PromptPreview: preview(prompt),
		Response:      response,
		CreatedAt:     unixSeconds(c.now()),
	}

	c.mu.Lock()
	idx := c.slotFor(hash)
	copy(c.columns[idx*c.dim:(idx+1)*c.dim], vec)
	c.norms[idx] = float32(l2Norm(vec))
	c.entries[idx] = entry
	c.inserts.Add(1)

	if c.snapshot != nil {
		if err := c.snapshot.persistSlot(ctx, c.n, idx, entry, c.columns); err != nil {
			c.logger.Warn("semantic cache snapshot write failed",
				"slot", idx,
				"error", err)
		}
	}
	c.mu.Unlock()

	return idx, nil
}

// slotFor picks the slot a new entry with the given hash should occupy:
// the slot already holding that hash, the next free slot, or the eviction
// victim when the cache is full. Callers must hold the write lock.
func (c *Cache) slotFor(hash string) int {
	for i := 0; i < c.n; i++ {
		if c.entries[i].PromptHash == hash {
			return i
		}
	}
	if c.n < c.maxEntries {
		idx := c.n
		c.n++
		return idx
	}
	victim := c.evictionVictim()
	c.evictions.Add(1)
	return victim
}

// evictionVictim scans the occupied prefix for the entry with the lowest
// protected age, created_at + hit_count*hitProtection. Ties resolve to the
// lowest index. Callers must hold the write lock.
func (c *Cache) evictionVictim() int {
	victim := 0
	lowest := math.Inf(1)
	for i := 0; i < c.n; i++ {
		e := c.entries[i]
		score := e.CreatedAt + float64(e.hits.Load())*c.hitProtection
		if score < lowest {
			lowest = score
			victim = i
		}
	}
	return victim
}

// Invalidate removes every entry whose prompt hash matches the given prompt
// and reports how many were removed. Freed slots are filled by moving the
// last occupied column down, so the occupied prefix stays dense.
func (c *Cache) Invalidate(ctx context.Context, prompt string) int {
	target := hashPrompt(prompt)

	c.mu.Lock()
	removed := 0
	for i := 0; i < c.n; {
		if c.entries[i].PromptHash == target {
			c.removeSlot(i)
			removed++
			continue // recheck the entry swapped into slot i
		}
		i++
	}
	if removed > 0 {
		c.persistAllLocked(ctx)
	}
	c.mu.Unlock()
	return removed
}

// InvalidateAll empties the cache and reports how many entries were dropped.
func (c *Cache) InvalidateAll(ctx context.Context) int {
	c.mu.Lock()
	removed := c.n
	for i := 0; i < c.n; i++ {
		c.entries[i] = nil
	}
	zero := c.columns[:c.n*c.dim]
	for i := range zero {
		zero[i] = 0
	}
	for i := 0; i < c.n; i++ {
		c.norms[i] = 0
	}
	c.n = 0
	if removed > 0 {
		c.persistAllLocked(ctx)
	}
	c.mu.Unlock()
	return removed
}

// removeSlot drops slot i by swapping the last occupied slot into it.
// Callers must hold the write lock.
func (c *Cache) removeSlot(i int) {
	last := c.n - 1
	if i != last {
		copy(c.columns[i*c.dim:(i+1)*c.dim], c.columns[last*c.dim:(last+1)*c.dim])
		c.norms[i] = c.norms[last]
		c.entries[i] = c.entries[last]
	}
	tail := c.columns[last*c.dim : (last+1)*c.dim]
	for j := range tail {
		tail[j] = 0
	}
	c.norms[last] = 0
	c.entries[last] = nil
	c.n = last
}

// persistAllLocked rewrites the full snapshot. Callers must hold the write
// lock. Failures are logged and swallowed, the in-memory cache is the source
// of truth.
func (c *Cache) persistAllLocked(ctx context.Context) {
	if c.snapshot == nil {
		return
	}
	if err := c.snapshot.persistAll(ctx, c.entries[:c.n], c.columns); err != nil {
		c.logger.Warn("semantic cache snapshot rewrite failed",
			"entries", c.n,
			"error", err)
	}
}

// restore loads a previously persisted snapshot. Any inconsistency leaves the
// cache empty rather than half-loaded.
func (c *Cache) restore(ctx context.Context) error {
	state, err := c.snapshot.restore(ctx, c.dim, c.maxEntries)
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}

	c.mu.Lock()
	copy(c.columns, state.columns)
	copy(c.entries, state.entries)
	c.n = state.count
	// Norms are recomputed from the restored matrix rather than trusted
	// from the snapshot, keeping them consistent with the columns.
	for i := 0; i < c.n; i++ {
		c.norms[i] = float32(l2Norm(c.columns[i*c.dim : (i+1)*c.dim]))
	}
	c.mu.Unlock()

	c.logger.Info("semantic cache restored from snapshot",
		"entries", state.count)
	return nil
}

// Stats reports cache occupancy and hit counters.
func (c *Cache) Stats() types.CacheStats {
	c.mu.RLock()
	n := c.n
	c.mu.RUnlock()

	hits := c.hits.Load()
	misses := c.misses.Load()
	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return types.CacheStats{
		Entries:    n,
		MaxEntries: c.maxEntries,
		Dimension:  c.dim,
		Hits:       hits,
		Misses:     misses,
		Evictions:  c.evictions.Load(),
		HitRate:    hitRate,
		FillRatio:  float64(n) / float64(c.maxEntries),
	}
}

// SimilarityThreshold reports the configured hit threshold.
func (c *Cache) SimilarityThreshold() float64 {
	return c.threshold
}

// hashPrompt returns the truncated hex SHA-256 used as the entry identity.
func hashPrompt(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])[:16]
}

// preview keeps the first previewBytes bytes of the prompt for debugging.
func preview(prompt string) string {
	if len(prompt) <= previewBytes {
		return prompt
	}
	return prompt[:previewBytes]
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// l2Norm computes the Euclidean norm with float64 accumulation.
func l2Norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// clampSimilarity pins float round-off into [0, 1].
func clampSimilarity(sim float64) float64 {
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
