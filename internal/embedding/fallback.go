package embedding

import (
	"context"
	"log/slog"
)

// EmbedFunc is the signature of an external embedding side-call, typically
// the inference backend's Embed method.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// FallbackEmbedder tries a primary embedding function and degrades to the
// deterministic hash embedder when it fails or returns a vector of the
// wrong width. Both the semantic cache and the retrieval store consume
// fixed-dimension float32 columns, so a mismatched vector is as unusable
// as an error.
type FallbackEmbedder struct {
	primary EmbedFunc
	hash    *HashEmbedder
	logger  *slog.Logger
}

// NewFallbackEmbedder builds a fallback embedder of the given dimension.
// A nil primary function makes it equivalent to a plain HashEmbedder.
func NewFallbackEmbedder(primary EmbedFunc, dim int, logger *slog.Logger) *FallbackEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackEmbedder{
		primary: primary,
		hash:    NewHashEmbedder(dim),
		logger:  logger,
	}
}

// Embed returns the primary embedding when available, the hash embedding
// otherwise. It never returns an error.
func (e *FallbackEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.primary != nil {
		vec, err := e.primary(ctx, text)
		switch {
		case err != nil:
			e.logger.Debug("primary embedder failed, using hash fallback", "error", err)
		case len(vec) != e.hash.Dimension():
			e.logger.Warn("primary embedder returned wrong dimension, using hash fallback",
				"got", len(vec),
				"want", e.hash.Dimension())
		default:
			return vec, nil
		}
	}
	return e.hash.Embed(ctx, text)
}

// Dimension returns the embedding dimension.
func (e *FallbackEmbedder) Dimension() int { return e.hash.Dimension() }

// Model returns the primary-with-fallback model identifier.
func (e *FallbackEmbedder) Model() string { return "backend+hash-fallback" }
