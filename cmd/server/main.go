// Package main is the entry point for the inferd gateway server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blueberrycongee/inferd"
	"github.com/blueberrycongee/inferd/internal/api"
	"github.com/blueberrycongee/inferd/internal/backend"
	"github.com/blueberrycongee/inferd/internal/batch"
	"github.com/blueberrycongee/inferd/internal/cache/prompt"
	"github.com/blueberrycongee/inferd/internal/cache/soa"
	"github.com/blueberrycongee/inferd/internal/config"
	"github.com/blueberrycongee/inferd/internal/embedding"
	"github.com/blueberrycongee/inferd/internal/guardrail"
	"github.com/blueberrycongee/inferd/internal/ingest"
	"github.com/blueberrycongee/inferd/internal/metrics"
	"github.com/blueberrycongee/inferd/internal/observability"
	"github.com/blueberrycongee/inferd/internal/retrieval"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	// Bootstrap logger; replaced once the configuration is loaded.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting inferd gateway", "version", inferd.Version)

	cfgManager, err := config.NewManager(*configPath, logger)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	defer cfgManager.Close()

	cfg := cfgManager.Get()
	logger = newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cfgManager.Watch(ctx); err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	}

	secrets, err := newSecretManager(cfg.Secrets)
	if err != nil {
		logger.Error("failed to initialize secret resolution", "error", err)
		os.Exit(1)
	}
	defer secrets.Close()

	if err := resolveSecrets(ctx, secrets, cfg); err != nil {
		logger.Error("failed to resolve secret references", "error", err)
		os.Exit(1)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	tracer, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Protocol:    cfg.Tracing.Protocol,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	engine, redisClient, err := buildEngine(ctx, cfg, logger, m, tracer)
	if err != nil {
		logger.Error("failed to assemble engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()
	if redisClient != nil {
		defer redisClient.Close()
	}

	var auditor *observability.S3AuditShipper
	if cfg.Audit.Enabled {
		auditor, err = observability.NewS3AuditShipper(ctx, observability.S3AuditConfig{
			Bucket:        cfg.Audit.S3Bucket,
			Region:        cfg.Audit.S3Region,
			Endpoint:      cfg.Audit.S3Endpoint,
			KeyPrefix:     cfg.Audit.KeyPrefix,
			FlushInterval: cfg.Audit.FlushInterval,
			MaxBatch:      cfg.Audit.MaxBatch,
		}, logger)
		if err != nil {
			logger.Error("failed to start audit shipper", "error", err)
			os.Exit(1)
		}
		defer func() {
			drainCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			if err := auditor.Shutdown(drainCtx); err != nil {
				logger.Warn("audit drain failed", "error", err)
			}
		}()
	}

	authMW, rateLimiter, err := buildAuth(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to configure authentication", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(api.Config{
		Engine:       engine,
		Processor:    ingest.NewProcessor(),
		Logger:       logger,
		Metrics:      m,
		AuthMW:       authMW,
		RateLimiter:  rateLimiter,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}

// buildEngine assembles the serving core from the configuration: backend,
// embedder, semantic cache (with optional Redis snapshot), exact-match
// shortcut, retrieval store, guardrails, and batch scheduler. The returned
// Redis client, when non-nil, must outlive the engine.
func buildEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, tracer *observability.TracerProvider) (*inferd.Engine, *redis.Client, error) {
	opts := []inferd.Option{
		inferd.WithLogger(logger),
		inferd.WithBatchConfig(batch.Config{
			MaxBatchSize:   cfg.Batch.MaxBatchSize,
			Window:         cfg.Batch.Window,
			RequestTimeout: cfg.Batch.RequestTimeout,
			QueueSize:      cfg.Batch.QueueSize,
		}),
	}

	var gen backend.Generator
	if cfg.Model.BaseURL != "" {
		llama := backend.NewLlamaCpp(backend.LlamaConfig{
			BaseURL:     cfg.Model.BaseURL,
			ModelName:   cfg.Model.Name,
			ContextSize: cfg.Model.ContextSize,
			Timeout:     cfg.Model.Timeout,
		})
		gen = llama
		opts = append(opts, inferd.WithBackend(llama))
		logger.Info("inference backend configured",
			"backend", cfg.Model.Backend,
			"base_url", cfg.Model.BaseURL,
			"loaded", llama.ModelInfo().Loaded)
	} else {
		logger.Warn("no inference backend configured, serving demo responses")
	}

	// The cache and the retrieval store share one embedder so identical
	// prompts embed identically everywhere. The backend's embedding
	// side-call is preferred; the hash fallback keeps exact-match hits
	// working without it.
	var embedFn embedding.EmbedFunc
	if gen != nil {
		embedFn = gen.Embed
	}
	embedder := embedding.NewFallbackEmbedder(embedFn, cfg.Cache.Dimension, logger)

	cacheOpts := []soa.Option{soa.WithLogger(logger)}
	var redisClient *redis.Client
	if cfg.Cache.Snapshot.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.Cache.Snapshot.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse snapshot redis url: %w", err)
		}
		redisClient = redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// Snapshot I/O is best effort even at startup.
			logger.Warn("snapshot redis unreachable, cache starts empty", "error", err)
		}
		cacheOpts = append(cacheOpts, soa.WithSnapshot(
			soa.NewRedisSnapshot(redisClient, cfg.Cache.Snapshot.Key)))
	}

	cache, err := soa.New(embedder, soa.Config{
		Dimension:           cfg.Cache.Dimension,
		MaxEntries:          cfg.Cache.MaxEntries,
		SimilarityThreshold: cfg.Cache.SimilarityThreshold,
		HitProtection:       time.Duration(cfg.Cache.HitWeightSeconds) * time.Second,
	}, cacheOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("build semantic cache: %w", err)
	}
	opts = append(opts, inferd.WithCache(cache))

	if cfg.PromptCache.Enabled {
		opts = append(opts, inferd.WithPromptCache(prompt.New(prompt.Config{
			MaxEntries: cfg.PromptCache.MaxEntries,
			TTL:        cfg.PromptCache.TTL,
		})))
	}

	if cfg.Retrieval.Enabled {
		store, err := retrieval.New(embedder, retrieval.Config{
			Dimension:   cfg.Cache.Dimension,
			TopK:        cfg.Retrieval.TopK,
			Threshold:   cfg.Retrieval.Threshold,
			StoragePath: cfg.Retrieval.StoragePath,
		}, retrieval.WithLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("build retrieval store: %w", err)
		}
		opts = append(opts, inferd.WithRetrieval(store))
	}

	opts = append(opts, inferd.WithGuardrails(guardrail.New(guardrailConfig(cfg.Guardrails))))

	if m != nil {
		opts = append(opts, inferd.WithMetrics(m))
	}
	if cfg.Tracing.Enabled {
		opts = append(opts, inferd.WithTracer(tracer.Tracer()))
	}

	engine, err := inferd.New(opts...)
	if err != nil {
		return nil, nil, err
	}
	return engine, redisClient, nil
}

// guardrailConfig maps the YAML guardrail block onto the screening config.
// The strict-mode and PII flags default to true when omitted.
func guardrailConfig(gc config.GuardrailsConfig) guardrail.Config {
	out := guardrail.DefaultConfig()
	if gc.StrictMode != nil {
		out.StrictMode = *gc.StrictMode
	}
	if gc.MaskPII != nil {
		out.MaskPII = *gc.MaskPII
	}
	if gc.ToxicityThreshold > 0 {
		out.ToxicityThreshold = gc.ToxicityThreshold
	}
	if gc.HallucinationThreshold > 0 {
		out.HallucinationThreshold = gc.HallucinationThreshold
	}
	return out
}

// newLogger builds the configured application logger.
func newLogger(lc config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return observability.NewLogger(observability.LoggerConfig{
		Level:      level,
		Output:     os.Stdout,
		JSONFormat: lc.Format != "text",
	}, observability.NewRedactor()).Logger
}
