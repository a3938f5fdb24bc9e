// Package embedding defines the text embedding contract shared by the
// semantic cache and the retrieval store, plus a deterministic hash-based
// fallback for deployments without a real embedding model.
package embedding

import "context"

// Embedder converts text into a dense vector representation.
type Embedder interface {
	// Embed generates an embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension.
	Dimension() int

	// Model returns the model identifier used for embeddings.
	Model() string
}
