// Package metrics provides Prometheus instrumentation for the inference
// gateway: generation outcomes and latency, cache effectiveness, batch
// shape, guardrail blocks, and the HTTP boundary.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "inferd"

// LatencyBuckets covers on-device inference: cache hits land in the
// millisecond range, generations in seconds.
var LatencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
	1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0,
}

// Metrics holds every collector the gateway exports. All collectors are
// registered against the registry passed to New, so tests can use a fresh
// registry and never collide.
type Metrics struct {
	registry *prometheus.Registry

	generateTotal   *prometheus.CounterVec
	generateLatency *prometheus.HistogramVec
	similarity      prometheus.Histogram
	tokensGenerated prometheus.Counter
	guardrailBlocks *prometheus.CounterVec

	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions prometheus.Counter
	cacheEntries   prometheus.Gauge

	batchSize  prometheus.Histogram
	queueDepth prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

// New builds a metric set on its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		generateTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generate_requests_total",
			Help:      "Generation requests by outcome",
		}, []string{"outcome"}),

		generateLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generate_latency_seconds",
			Help:      "End-to-end generation latency",
			Buckets:   LatencyBuckets,
		}, []string{"outcome"}),

		similarity: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_similarity",
			Help:      "Best cosine similarity observed per lookup",
			Buckets:   []float64{0.0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 0.99, 1.0},
		}),

		tokensGenerated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_generated_total",
			Help:      "Tokens returned to callers",
		}),

		guardrailBlocks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guardrail_blocks_total",
			Help:      "Requests blocked by guardrails, by threat type",
		}, []string{"threat_type"}),

		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Semantic cache hits",
		}),

		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Semantic cache misses",
		}),

		cacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Semantic cache evictions",
		}),

		cacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Current semantic cache entry count",
		}),

		batchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Requests per dispatched batch",
			Buckets:   []float64{1, 2, 3, 4, 6, 8},
		}),

		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_queue_depth",
			Help:      "Requests waiting in the batch queue",
		}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),

		httpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by route",
			Buckets:   LatencyBuckets,
		}, []string{"method", "route"}),
	}
}

// ObserveGenerate records one completed generation.
func (m *Metrics) ObserveGenerate(outcome string, elapsed time.Duration) {
	m.generateTotal.WithLabelValues(outcome).Inc()
	m.generateLatency.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveSimilarity records the best cosine similarity of one lookup.
func (m *Metrics) ObserveSimilarity(similarity float64) {
	m.similarity.Observe(similarity)
}

// AddTokens adds to the generated-token counter.
func (m *Metrics) AddTokens(n int) {
	if n > 0 {
		m.tokensGenerated.Add(float64(n))
	}
}

// RecordGuardrailBlock counts one blocked request.
func (m *Metrics) RecordGuardrailBlock(threatType string) {
	if threatType == "" {
		threatType = "unknown"
	}
	m.guardrailBlocks.WithLabelValues(threatType).Inc()
}

// RecordCacheHit counts one semantic cache hit.
func (m *Metrics) RecordCacheHit() { m.cacheHits.Inc() }

// RecordCacheMiss counts one semantic cache miss.
func (m *Metrics) RecordCacheMiss() { m.cacheMisses.Inc() }

// RecordCacheEviction counts one eviction.
func (m *Metrics) RecordCacheEviction() { m.cacheEvictions.Inc() }

// SetCacheEntries updates the cache size gauge.
func (m *Metrics) SetCacheEntries(n int) { m.cacheEntries.Set(float64(n)) }

// ObserveBatch records the size of one dispatched batch.
func (m *Metrics) ObserveBatch(size int) { m.batchSize.Observe(float64(size)) }

// SetQueueDepth updates the batch queue gauge.
func (m *Metrics) SetQueueDepth(n int) { m.queueDepth.Set(float64(n)) }

// Handler serves the scrape endpoint for this metric set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
