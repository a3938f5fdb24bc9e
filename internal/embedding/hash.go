package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
)

// HashEmbedder derives a pseudo-embedding from a seeded PRNG keyed by the
// SHA-256 of the text. Identical texts always map to identical vectors, so
// exact-match cache behavior (similarity 1.0) survives without a real
// embedding model. Distinct texts get effectively orthogonal vectors; the
// embedder carries no semantic signal and exists only as a fallback.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hash-based fallback embedder.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 768
	}
	return &HashEmbedder{dim: dim}
}

// Embed generates the deterministic pseudo-embedding for text.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	seed := int64(binary.BigEndian.Uint32(sum[:4]))
	rng := rand.New(rand.NewSource(seed))

	vec := make([]float32, e.dim)
	for i := range vec {
		vec[i] = float32(rng.NormFloat64())
	}
	return vec, nil
}

// Dimension returns the embedding dimension.
func (e *HashEmbedder) Dimension() int { return e.dim }

// Model returns the fallback model identifier.
func (e *HashEmbedder) Model() string { return "hash-fallback" }
