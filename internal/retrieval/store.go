// Package retrieval holds an in-memory vector store of document chunks for
// prompt augmentation. Chunks are append-only; embeddings live in a single
// row-major float32 matrix scanned in full on every search. The store
// persists itself as a metadata JSON plus a raw vector side-file and starts
// empty whenever the pair is missing or inconsistent.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/blueberrycongee/inferd/internal/embedding"
	"github.com/blueberrycongee/inferd/pkg/types"
)

// degenerateNorm is the cutoff below which a vector scores 0 against
// everything.
const degenerateNorm = 1e-8

// Config tunes the store. Zero values fall back to the defaults.
type Config struct {
	// Dimension is the embedding dimension. Must match the embedder.
	Dimension int

	// TopK is the default number of chunks returned by Search.
	TopK int

	// Threshold is the default minimum cosine similarity for a result.
	Threshold float64

	// StoragePath is the base path for the persisted side-files
	// (<path>.json and <path>.vec). Empty disables persistence.
	StoragePath string
}

func (c Config) withDefaults() Config {
	if c.Dimension <= 0 {
		c.Dimension = 768
	}
	if c.TopK <= 0 {
		c.TopK = 2
	}
	if c.Threshold <= 0 {
		c.Threshold = 0.3
	}
	return c
}

// Store is the retrieval vector store.
type Store struct {
	embedder embedding.Embedder
	logger   *slog.Logger
	cfg      Config

	mu      sync.RWMutex
	chunks  []types.DocumentChunk
	vectors []float32 // len(chunks)*dim, row-major
}

// Option customizes store construction.
type Option func(*Store)

// WithLogger sets the logger used for soft failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New builds a retrieval store and loads any persisted state. A missing or
// inconsistent side-file pair leaves the store empty.
func New(embedder embedding.Embedder, cfg Config, opts ...Option) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	cfg = cfg.withDefaults()
	if got := embedder.Dimension(); got != cfg.Dimension {
		return nil, fmt.Errorf("embedder dimension %d does not match store dimension %d", got, cfg.Dimension)
	}

	s := &Store{
		embedder: embedder,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	if cfg.StoragePath != "" {
		if err := s.load(); err != nil {
			s.logger.Warn("retrieval store load failed, starting empty",
				"path", cfg.StoragePath,
				"error", err)
			s.chunks = nil
			s.vectors = nil
		}
	}
	return s, nil
}

// Add embeds and appends the given chunks. Chunks whose embedding fails are
// dropped with a log line; the return value is the number actually stored.
// The store persists itself after every call.
func (s *Store) Add(ctx context.Context, chunks []types.DocumentChunk) int {
	if len(chunks) == 0 {
		return 0
	}

	// Embed outside the lock; the embedder may call out to a model server.
	kept := make([]types.DocumentChunk, 0, len(chunks))
	vecs := make([]float32, 0, len(chunks)*s.cfg.Dimension)
	for _, chunk := range chunks {
		if chunk.Text == "" {
			continue
		}
		vec, err := s.embedder.Embed(ctx, chunk.Text)
		if err != nil || len(vec) != s.cfg.Dimension {
			s.logger.Warn("dropping chunk, embedding failed",
				"source", chunk.Source,
				"chunk_id", chunk.ChunkID,
				"error", err)
			continue
		}
		chunk.Score = 0
		kept = append(kept, chunk)
		vecs = append(vecs, vec...)
	}
	if len(kept) == 0 {
		return 0
	}

	s.mu.Lock()
	s.chunks = append(s.chunks, kept...)
	s.vectors = append(s.vectors, vecs...)
	s.persistLocked()
	s.mu.Unlock()

	s.logger.Info("retrieval chunks added",
		"added", len(kept),
		"dropped", len(chunks)-len(kept),
		"total", s.Len())
	return len(kept)
}

// Search returns up to k chunks whose cosine similarity to the query is at
// least threshold, highest first. Non-positive k or threshold fall back to
// the configured defaults. A degenerate query matches nothing.
func (s *Store) Search(ctx context.Context, query string, k int, threshold float64) ([]types.DocumentChunk, error) {
	if k <= 0 {
		k = s.cfg.TopK
	}
	if threshold <= 0 {
		threshold = s.cfg.Threshold
	}

	s.mu.RLock()
	empty := len(s.chunks) == 0
	s.mu.RUnlock()
	if empty || query == "" {
		return nil, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vec) != s.cfg.Dimension {
		return nil, fmt.Errorf("query embedding has dimension %d, want %d", len(vec), s.cfg.Dimension)
	}
	qNorm := l2Norm(vec)
	if qNorm <= degenerateNorm {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	dim := s.cfg.Dimension
	type scored struct {
		idx   int
		score float64
	}
	hits := make([]scored, 0, len(s.chunks))
	for i := range s.chunks {
		row := s.vectors[i*dim : (i+1)*dim]
		norm := l2Norm(row)
		if norm <= degenerateNorm {
			continue
		}
		var dot float64
		for j, q := range vec {
			dot += float64(q) * float64(row[j])
		}
		if score := dot / (qNorm * norm); score >= threshold {
			hits = append(hits, scored{idx: i, score: score})
		}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].score > hits[b].score
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	out := make([]types.DocumentChunk, len(hits))
	for i, h := range hits {
		out[i] = s.chunks[h.idx]
		out[i].Score = h.score
	}
	return out, nil
}

// Clear drops every chunk and rewrites the persisted state.
func (s *Store) Clear(ctx context.Context) int {
	s.mu.Lock()
	removed := len(s.chunks)
	s.chunks = nil
	s.vectors = nil
	s.persistLocked()
	s.mu.Unlock()

	s.logger.Info("retrieval store cleared", "removed", removed)
	return removed
}

// Len reports the number of stored chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Stats reports store occupancy.
func (s *Store) Stats() types.RetrievalStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sources := make(map[string]struct{}, len(s.chunks))
	for _, c := range s.chunks {
		sources[c.Source] = struct{}{}
	}
	return types.RetrievalStats{
		Chunks:    len(s.chunks),
		Sources:   len(sources),
		Dimension: s.cfg.Dimension,
	}
}

// AugmentPrompt wraps a prompt with retrieved context in the fixed template
// the engine dispatches on a cache miss. With no chunks the prompt is
// returned unchanged.
func AugmentPrompt(prompt string, chunks []types.DocumentChunk) string {
	if len(chunks) == 0 {
		return prompt
	}

	var b strings.Builder
	b.WriteString("Use the following context to answer the question.\n\nContext:\n")
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		b.WriteString(c.Text)
	}
	b.WriteString("\n\nQuestion:\n")
	b.WriteString(prompt)
	return b.String()
}

// l2Norm computes the Euclidean norm with float64 accumulation.
func l2Norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}
