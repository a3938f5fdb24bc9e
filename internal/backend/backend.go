// Package backend defines the inference primitive contract: text-to-text
// generation with an embedding side-call. The primitive is single threaded
// and not re-entrant; serialization is owned by the batch scheduler, not by
// implementations.
package backend

import (
	"context"
	"errors"

	"github.com/blueberrycongee/inferd/pkg/types"
)

// ErrEmbeddingUnavailable is returned by backends that cannot produce
// embeddings. Callers fall back to the deterministic hash embedder.
var ErrEmbeddingUnavailable = errors.New("backend does not support embeddings")

// ErrNotLoaded is returned when the model has not been loaded yet.
var ErrNotLoaded = errors.New("model is not loaded")

// Generator is the inference primitive.
type Generator interface {
	// Generate produces a completion for the prompt. Implementations are
	// not re-entrant; callers must serialize access.
	Generate(ctx context.Context, prompt string, params types.GenerationParams) (string, error)

	// Embed produces an embedding vector for the text, or
	// ErrEmbeddingUnavailable.
	Embed(ctx context.Context, text string) ([]float32, error)

	// ModelInfo reports the model name and load state.
	ModelInfo() types.ModelInfo
}
