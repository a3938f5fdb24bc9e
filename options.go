package inferd

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/blueberrycongee/inferd/internal/backend"
	"github.com/blueberrycongee/inferd/internal/batch"
	"github.com/blueberrycongee/inferd/internal/cache/prompt"
	"github.com/blueberrycongee/inferd/internal/cache/soa"
	"github.com/blueberrycongee/inferd/internal/guardrail"
	"github.com/blueberrycongee/inferd/internal/metrics"
	"github.com/blueberrycongee/inferd/internal/retrieval"
)

type options struct {
	backend     backend.Generator
	cache       *soa.Cache
	promptCache *prompt.Cache
	retrieval   *retrieval.Store
	guard       *guardrail.Guardrail
	batchConfig batch.Config
	logger      *slog.Logger
	metrics     *metrics.Metrics
	auditor     Auditor
	tracer      trace.Tracer
}

func defaultOptions() *options {
	return &options{
		logger: slog.Default(),
	}
}

// Option configures the engine during construction.
type Option func(*options)

// WithBackend sets the inference backend. Without one the engine serves
// demo responses.
func WithBackend(b backend.Generator) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithCache sets the semantic response cache. A default hash-embedder
// cache is built when omitted.
func WithCache(c *soa.Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithPromptCache enables the exact-match shortcut in front of the
// semantic cache.
func WithPromptCache(c *prompt.Cache) Option {
	return func(o *options) {
		o.promptCache = c
	}
}

// WithRetrieval enables prompt augmentation from the document store.
func WithRetrieval(s *retrieval.Store) Option {
	return func(o *options) {
		o.retrieval = s
	}
}

// WithGuardrails overrides the default guardrail configuration.
func WithGuardrails(g *guardrail.Guardrail) Option {
	return func(o *options) {
		o.guard = g
	}
}

// WithBatchConfig overrides the batch scheduler parameters.
func WithBatchConfig(cfg batch.Config) Option {
	return func(o *options) {
		o.batchConfig = cfg
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithAuditor installs the audit sink for completed generations.
func WithAuditor(a Auditor) Option {
	return func(o *options) {
		o.auditor = a
	}
}

// WithTracer enables OpenTelemetry spans around each generation.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}
