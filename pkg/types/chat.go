package types

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message     string   `json:"message"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
	NoCache     bool     `json:"no_cache,omitempty"`
}

// Reset clears the ChatRequest for reuse.
func (r *ChatRequest) Reset() {
	r.Message = ""
	r.MaxTokens = 0
	r.Temperature = nil
	r.TopP = nil
	r.Stream = false
	r.NoCache = false
}

// SecurityReport summarizes the guardrail outcome attached to a response.
type SecurityReport struct {
	Validated      bool     `json:"validated"`
	Warnings       []string `json:"warnings"`
	Confidence     float64  `json:"confidence"`
	ASVSCompliance []string `json:"asvs_compliance"`
}

// ChatResponse is the body of a successful POST /api/chat.
type ChatResponse struct {
	Response        string         `json:"response"`
	Status          string         `json:"status"`
	TokensGenerated int            `json:"tokens_generated"`
	CacheHit        bool           `json:"cache_hit"`
	Similarity      float64        `json:"similarity"`
	Security        SecurityReport `json:"security"`
}

// Reset clears the ChatResponse for reuse.
func (r *ChatResponse) Reset() {
	r.Response = ""
	r.Status = ""
	r.TokensGenerated = 0
	r.CacheHit = false
	r.Similarity = 0
	r.Security = SecurityReport{}
}
