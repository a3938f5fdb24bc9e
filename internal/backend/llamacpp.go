package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/inferd/pkg/types"
)

// DefaultLlamaBaseURL is the default llama.cpp server endpoint (local).
const DefaultLlamaBaseURL = "http://localhost:8080"

// LlamaConfig configures the llama.cpp server adapter.
type LlamaConfig struct {
	// BaseURL is the llama.cpp server address.
	BaseURL string

	// ModelName is reported in ModelInfo; the server itself decides which
	// weights it serves.
	ModelName string

	// ContextSize is reported in ModelInfo.
	ContextSize int

	// Timeout bounds a single HTTP call. Zero means 120s.
	Timeout time.Duration
}

// LlamaCpp adapts a local llama.cpp HTTP server (/completion, /embedding)
// to the Generator contract.
//
// loaded is read from every request path while Generate updates it from
// the scheduler goroutine, so it is atomic.
type LlamaCpp struct {
	cfg    LlamaConfig
	client *http.Client
	loaded atomic.Bool
}

// NewLlamaCpp builds the adapter and probes the server's health endpoint
// once to record the load state. A failed probe is not an error: the
// gateway serves demo responses until the model is up.
func NewLlamaCpp(cfg LlamaConfig) *LlamaCpp {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultLlamaBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	b := &LlamaCpp{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
	b.loaded.Store(b.probe())
	return b
}

// probe checks the server health endpoint.
func (b *LlamaCpp) probe() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type llamaCompletionRequest struct {
	Prompt      string  `json:"prompt"`
	NPredict    int     `json:"n_predict"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	Stream      bool    `json:"stream"`
}

type llamaCompletionResponse struct {
	Content string `json:"content"`
}

type llamaEmbeddingRequest struct {
	Content string `json:"content"`
}

type llamaEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Generate runs one completion against the server.
func (b *LlamaCpp) Generate(ctx context.Context, prompt string, params types.GenerationParams) (string, error) {
	if !b.loaded.Load() {
		if !b.probe() {
			return "", ErrNotLoaded
		}
		b.loaded.Store(true)
	}

	body := llamaCompletionRequest{
		Prompt:      prompt,
		NPredict:    params.MaxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
	}
	var out llamaCompletionResponse
	if err := b.post(ctx, "/completion", body, &out); err != nil {
		return "", fmt.Errorf("llama.cpp completion: %w", err)
	}
	return out.Content, nil
}

// Embed runs one embedding call against the server.
func (b *LlamaCpp) Embed(ctx context.Context, text string) ([]float32, error) {
	if !b.loaded.Load() {
		return nil, ErrEmbeddingUnavailable
	}

	var out llamaEmbeddingResponse
	if err := b.post(ctx, "/embedding", llamaEmbeddingRequest{Content: text}, &out); err != nil {
		return nil, fmt.Errorf("llama.cpp embedding: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, ErrEmbeddingUnavailable
	}
	return out.Embedding, nil
}

// ModelInfo reports the configured model identity and current load state.
func (b *LlamaCpp) ModelInfo() types.ModelInfo {
	return types.ModelInfo{
		Name:        b.cfg.ModelName,
		Loaded:      b.loaded.Load(),
		Backend:     "llama.cpp",
		ContextSize: b.cfg.ContextSize,
	}
}

func (b *LlamaCpp) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
