// Package api implements the HTTP boundary of the gateway: the chat
// endpoint, document ingestion, cache administration, and health probes.
package api

import (
	"log/slog"
	"net/http"

	"github.com/blueberrycongee/inferd"
	"github.com/blueberrycongee/inferd/internal/auth"
	"github.com/blueberrycongee/inferd/internal/ingest"
	"github.com/blueberrycongee/inferd/internal/metrics"
	"github.com/blueberrycongee/inferd/internal/observability"
)

// MaxTokensCap bounds client-requested generation length.
const MaxTokensCap = 256

// Handler serves the gateway API.
type Handler struct {
	engine    *inferd.Engine
	processor *ingest.Processor
	logger    *slog.Logger
	metrics   *metrics.Metrics

	authMW      *auth.Middleware
	rateLimiter *auth.RateLimiter

	maxBodyBytes int64
}

// Config wires the handler dependencies. Engine is required; everything
// else degrades gracefully when absent.
type Config struct {
	Engine       *inferd.Engine
	Processor    *ingest.Processor
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	AuthMW       *auth.Middleware
	RateLimiter  *auth.RateLimiter
	MaxBodyBytes int64
}

// NewHandler builds the handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Processor == nil {
		cfg.Processor = ingest.NewProcessor()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Handler{
		engine:       cfg.Engine,
		processor:    cfg.Processor,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		authMW:       cfg.AuthMW,
		rateLimiter:  cfg.RateLimiter,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
}

// Routes returns the fully wired router. The middleware chain runs
// request ID assignment, then rate limiting, then authentication; health
// and metrics stay outside auth so probes and scrapers need no keys.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /health", h.instrument("/health", http.HandlerFunc(h.handleHealth)))
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}

	mux.Handle("POST /api/chat", h.protect("/api/chat", http.HandlerFunc(h.handleChat)))
	mux.Handle("POST /api/documents/upload", h.protect("/api/documents/upload", http.HandlerFunc(h.handleDocumentUpload)))
	mux.Handle("POST /api/documents/clear", h.protect("/api/documents/clear", http.HandlerFunc(h.handleDocumentsClear)))
	mux.Handle("GET /api/documents/search", h.protect("/api/documents/search", http.HandlerFunc(h.handleDocumentSearch)))
	mux.Handle("GET /api/model/info", h.protect("/api/model/info", http.HandlerFunc(h.handleModelInfo)))
	mux.Handle("GET /api/stats", h.protect("/api/stats", http.HandlerFunc(h.handleStats)))
	mux.Handle("POST /api/cache/clear", h.protect("/api/cache/clear", http.HandlerFunc(h.handleCacheClear)))

	return observability.RequestIDMiddleware(mux)
}

// protect applies rate limiting and authentication, then instruments.
func (h *Handler) protect(route string, next http.Handler) http.Handler {
	wrapped := next
	if h.authMW != nil {
		wrapped = h.authMW.Handler(wrapped)
	}
	if h.rateLimiter != nil {
		wrapped = h.rateLimiter.Handler(wrapped)
	}
	return h.instrument(route, wrapped)
}

func (h *Handler) instrument(route string, next http.Handler) http.Handler {
	if h.metrics == nil {
		return next
	}
	return h.metrics.Middleware(route, next)
}
