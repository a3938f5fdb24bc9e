// Package types defines the data structures exchanged between the serving
// boundary, the cached engine, and its subsystems: generation parameters,
// engine requests and results, document chunks, and statistics snapshots.
package types

// GenerationParams holds the sampling parameters for one generation call.
// The batch scheduler groups requests by exact equality of this tuple, so
// the struct must stay comparable.
type GenerationParams struct {
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

// DefaultGenerationParams returns the engine defaults used when a caller
// omits a parameter.
func DefaultGenerationParams() GenerationParams {
	return GenerationParams{
		MaxTokens:   256,
		Temperature: 0.7,
		TopP:        0.9,
	}
}

// GenerateRequest is the engine-level request for one generation.
type GenerateRequest struct {
	// RequestID identifies the request across logs, traces, and audit
	// records. The engine assigns one when empty.
	RequestID string `json:"request_id,omitempty"`

	// Prompt is the original user prompt. Cache lookup and insertion key
	// on this text, never on the retrieval-augmented variant.
	Prompt string `json:"prompt"`

	Params GenerationParams `json:"params"`

	// NoCache skips both the cache lookup and the post-generation insert.
	NoCache bool `json:"no_cache,omitempty"`
}

// GenerateResult is the outcome of one generation, cached or fresh.
type GenerateResult struct {
	RequestID       string   `json:"request_id"`
	Response        string   `json:"response"`
	CacheHit        bool     `json:"cache_hit"`
	Similarity      float64  `json:"similarity"`
	TokensGenerated int      `json:"tokens_generated"`
	Blocked         bool     `json:"blocked,omitempty"`
	ThreatType      string   `json:"threat_type,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
	Confidence      float64  `json:"confidence"`
	ASVSCompliance  []string `json:"asvs_compliance,omitempty"`

	// Demo is set when no inference backend is loaded and the response is
	// the canned placeholder. Demo results are never cached.
	Demo bool `json:"demo,omitempty"`
}

// ModelInfo reports the load state of the inference backend.
type ModelInfo struct {
	Name        string `json:"name"`
	Loaded      bool   `json:"loaded"`
	Backend     string `json:"backend,omitempty"`
	ContextSize int    `json:"context_size,omitempty"`
}
