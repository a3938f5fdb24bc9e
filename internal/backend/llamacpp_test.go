package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/inferd/pkg/types"
)

func llamaServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/completion", func(w http.ResponseWriter, r *http.Request) {
		var req llamaCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 128, req.NPredict)
		_ = json.NewEncoder(w).Encode(llamaCompletionResponse{Content: "completion for: " + req.Prompt})
	})
	mux.HandleFunc("/embedding", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(llamaEmbeddingResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLlamaCppGenerate(t *testing.T) {
	srv := llamaServer(t)
	b := NewLlamaCpp(LlamaConfig{BaseURL: srv.URL, ModelName: "test-model"})

	require.True(t, b.ModelInfo().Loaded)

	out, err := b.Generate(context.Background(), "hi", types.GenerationParams{MaxTokens: 128, Temperature: 0.5, TopP: 0.9})
	require.NoError(t, err)
	assert.Equal(t, "completion for: hi", out)
}

func TestLlamaCppEmbed(t *testing.T) {
	srv := llamaServer(t)
	b := NewLlamaCpp(LlamaConfig{BaseURL: srv.URL})

	vec, err := b.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestLlamaCppNotLoaded(t *testing.T) {
	// Point at a closed server so the probe fails.
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	b := NewLlamaCpp(LlamaConfig{BaseURL: srv.URL})

	assert.False(t, b.ModelInfo().Loaded)

	_, err := b.Generate(context.Background(), "hi", types.GenerationParams{})
	assert.ErrorIs(t, err, ErrNotLoaded)

	_, err = b.Embed(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestLlamaCppLoadStateConcurrent(t *testing.T) {
	// Start unhealthy so construction records unloaded, then flip healthy
	// and hammer Generate alongside ModelInfo/Embed readers. The load
	// state flips mid-flight; the race detector keeps this honest.
	var healthy atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/completion", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(llamaCompletionResponse{Content: "ok"})
	})
	mux.HandleFunc("/embedding", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(llamaEmbeddingResponse{Embedding: []float32{0.1}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b := NewLlamaCpp(LlamaConfig{BaseURL: srv.URL})
	require.False(t, b.ModelInfo().Loaded)
	healthy.Store(true)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, _ = b.Generate(context.Background(), "hi", types.GenerationParams{})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = b.ModelInfo()
			_, _ = b.Embed(context.Background(), "hi")
		}
	}()
	wg.Wait()

	assert.True(t, b.ModelInfo().Loaded)
}

func TestLlamaCppServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/completion", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "out of memory", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b := NewLlamaCpp(LlamaConfig{BaseURL: srv.URL})
	_, err := b.Generate(context.Background(), "hi", types.GenerationParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
