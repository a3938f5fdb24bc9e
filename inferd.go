// Package inferd is the serving core of an on-premise LLM inference
// gateway. It accepts chat requests, resolves them against a semantic
// response cache, optionally augments prompts with retrieved document
// context, dispatches cache misses through a continuous batching scheduler
// to a single bounded inference backend, and returns filtered, screened
// text.
//
// The Engine is the public entry point:
//
//	engine, err := inferd.New(
//	    inferd.WithBackend(backend.NewLlamaCpp(backend.LlamaConfig{})),
//	    inferd.WithCache(cache),
//	    inferd.WithRetrieval(store),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	result, err := engine.Generate(ctx, types.GenerateRequest{Prompt: "What is ML?"})
package inferd

import (
	"github.com/blueberrycongee/inferd/pkg/types"
)

// Version is the current version of inferd.
const Version = "1.0.0"

// Re-export the core request/response types for convenience.
type (
	// GenerateRequest is an engine-level generation request.
	GenerateRequest = types.GenerateRequest

	// GenerateResult is the outcome of one generation, cached or fresh.
	GenerateResult = types.GenerateResult

	// GenerationParams holds the sampling parameters for one call.
	GenerationParams = types.GenerationParams

	// DocumentChunk is one retrievable span of an ingested document.
	DocumentChunk = types.DocumentChunk

	// EngineStats aggregates engine and subsystem statistics.
	EngineStats = types.EngineStats

	// ModelInfo reports the inference backend load state.
	ModelInfo = types.ModelInfo
)
