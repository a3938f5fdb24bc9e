// Package main exposes the inferd engine over the Model Context Protocol
// so local agent tooling can call generation, document search, and cache
// inspection through a stdio server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/blueberrycongee/inferd"
	"github.com/blueberrycongee/inferd/internal/backend"
	"github.com/blueberrycongee/inferd/internal/batch"
	"github.com/blueberrycongee/inferd/internal/cache/soa"
	"github.com/blueberrycongee/inferd/internal/config"
	"github.com/blueberrycongee/inferd/internal/embedding"
	"github.com/blueberrycongee/inferd/internal/retrieval"
	"github.com/blueberrycongee/inferd/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "optional path to configuration file")
	flag.Parse()

	// Stdout carries the MCP protocol; logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadFromFile(*configPath)
		if err != nil {
			logger.Error("failed to load configuration", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		logger.Error("failed to assemble engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	s := server.NewMCPServer("inferd", inferd.Version,
		server.WithToolCapabilities(false),
	)
	registerTools(s, engine)

	if err := server.ServeStdio(s); err != nil {
		logger.Error("mcp server stopped", "error", err)
		os.Exit(1)
	}
}

// buildEngine assembles a local engine: the configured backend (or demo
// mode), the semantic cache, and the retrieval store. Snapshots, auth, and
// the audit trail stay with the HTTP boundary.
func buildEngine(cfg *config.Config, logger *slog.Logger) (*inferd.Engine, error) {
	opts := []inferd.Option{
		inferd.WithLogger(logger),
		inferd.WithBatchConfig(batch.Config{
			MaxBatchSize:   cfg.Batch.MaxBatchSize,
			Window:         cfg.Batch.Window,
			RequestTimeout: cfg.Batch.RequestTimeout,
			QueueSize:      cfg.Batch.QueueSize,
		}),
	}

	var embedFn embedding.EmbedFunc
	if cfg.Model.BaseURL != "" {
		llama := backend.NewLlamaCpp(backend.LlamaConfig{
			BaseURL:     cfg.Model.BaseURL,
			ModelName:   cfg.Model.Name,
			ContextSize: cfg.Model.ContextSize,
			Timeout:     cfg.Model.Timeout,
		})
		embedFn = llama.Embed
		opts = append(opts, inferd.WithBackend(llama))
	}
	embedder := embedding.NewFallbackEmbedder(embedFn, cfg.Cache.Dimension, logger)

	cache, err := soa.New(embedder, soa.Config{
		Dimension:           cfg.Cache.Dimension,
		MaxEntries:          cfg.Cache.MaxEntries,
		SimilarityThreshold: cfg.Cache.SimilarityThreshold,
		HitProtection:       time.Duration(cfg.Cache.HitWeightSeconds) * time.Second,
	}, soa.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("build semantic cache: %w", err)
	}
	opts = append(opts, inferd.WithCache(cache))

	if cfg.Retrieval.Enabled {
		store, err := retrieval.New(embedder, retrieval.Config{
			Dimension:   cfg.Cache.Dimension,
			TopK:        cfg.Retrieval.TopK,
			Threshold:   cfg.Retrieval.Threshold,
			StoragePath: cfg.Retrieval.StoragePath,
		}, retrieval.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("build retrieval store: %w", err)
		}
		opts = append(opts, inferd.WithRetrieval(store))
	}

	return inferd.New(opts...)
}

func registerTools(s *server.MCPServer, engine *inferd.Engine) {
	s.AddTool(
		mcp.NewTool("generate",
			mcp.WithDescription("Generate a response for a prompt through the cached inference engine."),
			mcp.WithString("prompt",
				mcp.Required(),
				mcp.Description("The prompt to generate a response for."),
			),
			mcp.WithNumber("max_tokens",
				mcp.Description("Maximum number of tokens to generate."),
			),
			mcp.WithNumber("temperature",
				mcp.Description("Sampling temperature."),
			),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			promptText, err := req.RequireString("prompt")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			res, err := engine.Generate(ctx, types.GenerateRequest{
				Prompt: promptText,
				Params: types.GenerationParams{
					MaxTokens:   req.GetInt("max_tokens", 0),
					Temperature: req.GetFloat("temperature", 0),
				},
			})
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if res.Blocked {
				return mcp.NewToolResultError(fmt.Sprintf("blocked by guardrails: %s", res.ThreatType)), nil
			}
			return mcp.NewToolResultText(res.Response), nil
		},
	)

	s.AddTool(
		mcp.NewTool("search_documents",
			mcp.WithDescription("Search the retrieval store for document chunks similar to a query."),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("The search query."),
			),
			mcp.WithNumber("top_k",
				mcp.Description("Number of chunks to return."),
			),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			query, err := req.RequireString("query")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			chunks, err := engine.SearchDocuments(ctx, query, req.GetInt("top_k", 0))
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return jsonResult(chunks)
		},
	)

	s.AddTool(
		mcp.NewTool("cache_stats",
			mcp.WithDescription("Report engine, cache, and batch scheduler statistics."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return jsonResult(engine.Stats())
		},
	)

	s.AddTool(
		mcp.NewTool("clear_cache",
			mcp.WithDescription("Remove every entry from the semantic response cache."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			removed := engine.ClearCache(ctx)
			return mcp.NewToolResultText(fmt.Sprintf("removed %d cache entries", removed)), nil
		},
	)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(payload)), nil
}
