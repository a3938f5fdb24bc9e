package inferd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/blueberrycongee/inferd/internal/backend"
	"github.com/blueberrycongee/inferd/internal/batch"
	"github.com/blueberrycongee/inferd/internal/cache/prompt"
	"github.com/blueberrycongee/inferd/internal/cache/soa"
	"github.com/blueberrycongee/inferd/internal/embedding"
	"github.com/blueberrycongee/inferd/internal/guardrail"
	"github.com/blueberrycongee/inferd/internal/metrics"
	"github.com/blueberrycongee/inferd/internal/postprocess"
	"github.com/blueberrycongee/inferd/internal/retrieval"
	gwerrors "github.com/blueberrycongee/inferd/pkg/errors"
	"github.com/blueberrycongee/inferd/pkg/types"
)

// AuditRecord is one generation outcome shipped to the audit trail.
type AuditRecord = types.AuditRecord

// Auditor receives one record per completed generation. Implementations
// must not block the request path.
type Auditor interface {
	Record(ctx context.Context, rec AuditRecord)
}

// Engine composes the semantic cache, retrieval store, guardrails, and
// batch scheduler around a single inference backend. There is exactly one
// backend per process; every component that consumes it shares the same
// handle and serializes on the same inference mutex.
//
// Engine is safe for concurrent use by multiple goroutines.
type Engine struct {
	backend     backend.Generator
	cache       *soa.Cache
	promptCache *prompt.Cache
	retrieval   *retrieval.Store
	guard       *guardrail.Guardrail
	batcher     *batch.Scheduler
	logger      *slog.Logger
	metrics     *metrics.Metrics
	auditor     Auditor
	tracer      trace.Tracer

	inferMu sync.Mutex

	totalRequests atomic.Int64
	cacheHits     atomic.Int64
	lookupTimeUS  atomic.Int64
	lookups       atomic.Int64
	evictionsSeen atomic.Int64
}

// New assembles an engine from its options. A missing cache or guardrail
// is filled with a default; a missing backend puts the engine in demo
// mode, where generations return a canned response and the cache is never
// populated.
func New(opts ...Option) (*Engine, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(cfg)
	}

	e := &Engine{
		backend:     cfg.backend,
		cache:       cfg.cache,
		promptCache: cfg.promptCache,
		retrieval:   cfg.retrieval,
		guard:       cfg.guard,
		logger:      cfg.logger,
		metrics:     cfg.metrics,
		auditor:     cfg.auditor,
		tracer:      cfg.tracer,
	}

	if e.guard == nil {
		e.guard = guardrail.New(guardrail.DefaultConfig())
	}
	if e.cache == nil {
		embedder := embedding.NewHashEmbedder(768)
		c, err := soa.New(embedder, soa.Config{})
		if err != nil {
			return nil, fmt.Errorf("build default cache: %w", err)
		}
		e.cache = c
	}

	batchOpts := []batch.Option{
		batch.WithLogger(e.logger),
		batch.WithInferMutex(&e.inferMu),
	}
	if e.metrics != nil {
		batchOpts = append(batchOpts, batch.WithObserver(e.metrics))
	}
	scheduler, err := batch.New(e.infer, cfg.batchConfig, batchOpts...)
	if err != nil {
		return nil, fmt.Errorf("build batch scheduler: %w", err)
	}
	e.batcher = scheduler

	e.logger.Info("engine assembled",
		"backend_loaded", e.backendLoaded(),
		"cache_capacity", e.cache.Stats().MaxEntries,
		"retrieval", e.retrieval != nil,
		"prompt_cache", e.promptCache != nil)
	return e, nil
}

// infer is the InferFunc handed to the batch scheduler. It is only ever
// called with the shared inference mutex held.
func (e *Engine) infer(ctx context.Context, promptText string, params types.GenerationParams) (string, error) {
	if e.backend == nil {
		return "", backend.ErrNotLoaded
	}
	out, err := e.backend.Generate(ctx, promptText, params)
	if err != nil {
		return "", gwerrors.NewInferenceFailedError("backend", err.Error())
	}
	return out, nil
}

func (e *Engine) backendLoaded() bool {
	return e.backend != nil && e.backend.ModelInfo().Loaded
}

// Generate runs the full serving sequence for one prompt: input screening,
// cache lookup, retrieval augmentation, batched dispatch, output filtering,
// output screening, and cache insertion. Blocked requests return a result
// with Blocked set and a nil error; transport-worthy failures (timeouts,
// inference errors) return a nil result and the error.
func (e *Engine) Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerateResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, gwerrors.NewInputInvalidError("engine", "prompt must not be empty")
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	req.Params = fillParams(req.Params)

	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "engine.generate",
			trace.WithAttributes(attribute.String("request.id", req.RequestID)))
		defer span.End()
	}

	start := time.Now()
	e.totalRequests.Add(1)
	res, err := e.generate(ctx, req)
	e.finish(ctx, req, res, err, time.Since(start))
	return res, err
}

func (e *Engine) generate(ctx context.Context, req types.GenerateRequest) (*types.GenerateResult, error) {
	res := &types.GenerateResult{RequestID: req.RequestID}
	original := req.Prompt

	// Step 1: input screening. A block is terminal and never reaches the
	// cache or the scheduler.
	if in := e.guard.ScreenInput(original); in.Blocked {
		res.Blocked = true
		res.ThreatType = in.ThreatType
		res.Response = guardrail.BlockedResponse
		res.ASVSCompliance = in.ASVS
		e.logger.Warn("prompt blocked by guardrails",
			"request_id", req.RequestID,
			"threat", in.ThreatType)
		return res, nil
	}

	// Step 2: cache lookup on the original prompt, cheapest check first.
	if !req.NoCache {
		if e.promptCache != nil {
			if cached, ok := e.promptCache.Get(original); ok {
				res.CacheHit = true
				res.Similarity = 1.0
				if e.metrics != nil {
					e.metrics.RecordCacheHit()
				}
				return e.deliver(res, original, cached, nil, req.NoCache)
			}
		}

		lookupStart := time.Now()
		lr, err := e.cache.Lookup(ctx, original)
		e.lookups.Add(1)
		e.lookupTimeUS.Add(time.Since(lookupStart).Microseconds())
		if err != nil {
			// Embedding failures degrade to a miss.
			e.logger.Warn("cache lookup failed, treating as miss",
				"request_id", req.RequestID,
				"error", err)
		}
		res.Similarity = lr.Similarity
		if lr.Hit {
			res.CacheHit = true
			if e.metrics != nil {
				e.metrics.RecordCacheHit()
			}
			return e.deliver(res, original, lr.Response, nil, req.NoCache)
		}
		if e.metrics != nil {
			e.metrics.RecordCacheMiss()
		}
	}

	// Demo fallback: no loaded backend means no inference and no cache
	// population.
	if !e.backendLoaded() {
		res.Demo = true
		return e.deliver(res, original, demoResponse(original), nil, req.NoCache)
	}

	// Step 3: retrieval augmentation, never fatal.
	dispatchPrompt := original
	var ragTexts []string
	if e.retrieval != nil && e.retrieval.Len() > 0 {
		chunks, err := e.retrieval.Search(ctx, original, 0, 0)
		switch {
		case err != nil:
			e.logger.Warn("retrieval search failed, proceeding without context",
				"request_id", req.RequestID,
				"error", err)
		case len(chunks) > 0:
			dispatchPrompt = retrieval.AugmentPrompt(original, chunks)
			ragTexts = make([]string, len(chunks))
			for i, c := range chunks {
				ragTexts[i] = c.Text
			}
		}
	}

	// Step 4: dispatch through the batcher. Timeouts, cancellations, and
	// inference errors surface verbatim.
	raw, err := e.batcher.Submit(ctx, dispatchPrompt, req.Params)
	if err != nil {
		return nil, err
	}

	// Step 5: output filtering.
	cleaned := postprocess.Clean(raw)

	// Steps 6-8 shared with the hit path.
	return e.deliver(res, original, cleaned, ragTexts, req.NoCache)
}

// deliver runs output screening and, for fresh cacheable responses, the
// cache insertion, then finalizes the result.
func (e *Engine) deliver(res *types.GenerateResult, original, response string, ragTexts []string, noCache bool) (*types.GenerateResult, error) {
	out := e.guard.ScreenOutput(original, response, ragTexts)
	res.Warnings = out.Warnings
	res.Confidence = out.Confidence
	res.ASVSCompliance = append(res.ASVSCompliance, out.ASVS...)
	if out.Blocked {
		res.Blocked = true
		res.ThreatType = out.ThreatType
		res.Response = out.Response
		e.logger.Warn("response blocked by guardrails",
			"request_id", res.RequestID,
			"threat", out.ThreatType)
		return res, nil
	}
	res.Response = out.Response
	res.TokensGenerated = len(strings.Fields(out.Response))

	// Step 7: cache insertion, best effort, only for fresh real responses
	// the caller allowed to be cached.
	if !res.CacheHit && !res.Demo && !noCache {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := e.cache.Insert(ctx, original, out.Response); err != nil {
			e.logger.Warn("cache insert failed",
				"request_id", res.RequestID,
				"error", err)
		} else if e.metrics != nil {
			st := e.cache.Stats()
			e.metrics.SetCacheEntries(st.Entries)
			// One insert evicts at most one entry.
			if st.Evictions > e.evictionsSeen.Swap(st.Evictions) {
				e.metrics.RecordCacheEviction()
			}
		}
		if e.promptCache != nil {
			e.promptCache.Set(original, out.Response)
		}
	}
	return res, nil
}

// finish records metrics and the audit trail for one completed request.
func (e *Engine) finish(ctx context.Context, req types.GenerateRequest, res *types.GenerateResult, err error, elapsed time.Duration) {
	outcome := "ok"
	rec := AuditRecord{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		LatencyMS: elapsed.Milliseconds(),
	}
	switch {
	case err != nil:
		outcome = "error"
		rec.Error = err.Error()
	case res.Blocked:
		outcome = "blocked"
		rec.Blocked = true
		rec.ThreatType = res.ThreatType
	case res.CacheHit:
		outcome = "hit"
		e.cacheHits.Add(1)
	case res.Demo:
		outcome = "demo"
	}
	if res != nil {
		rec.CacheHit = res.CacheHit
		rec.Similarity = res.Similarity
		rec.Demo = res.Demo
		rec.Tokens = res.TokensGenerated
	}

	if e.metrics != nil {
		e.metrics.ObserveGenerate(outcome, elapsed)
		if res != nil {
			if res.CacheHit || (!res.Blocked && err == nil) {
				e.metrics.ObserveSimilarity(res.Similarity)
			}
			if res.Blocked {
				e.metrics.RecordGuardrailBlock(res.ThreatType)
			}
			e.metrics.AddTokens(res.TokensGenerated)
		}
	}
	if e.auditor != nil {
		e.auditor.Record(ctx, rec)
	}

	e.logger.Info("generate finished",
		"request_id", req.RequestID,
		"outcome", outcome,
		"elapsed", elapsed)
}

// Stats reports the engine and subsystem counters.
func (e *Engine) Stats() types.EngineStats {
	total := e.totalRequests.Load()
	hits := e.cacheHits.Load()
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	var avgLookupMS float64
	if n := e.lookups.Load(); n > 0 {
		avgLookupMS = float64(e.lookupTimeUS.Load()) / float64(n) / 1000
	}
	stats := types.EngineStats{
		TotalRequests:   total,
		CacheHits:       hits,
		CacheHitRate:    hitRate,
		AvgLookupTimeMS: avgLookupMS,
		Cache:           e.cache.Stats(),
		Batcher:         e.batcher.Stats(),
	}
	if e.retrieval != nil {
		stats.Retrieval = e.retrieval.Stats()
	}
	return stats
}

// ModelInfo reports the backend load state.
func (e *Engine) ModelInfo() types.ModelInfo {
	if e.backend == nil {
		return types.ModelInfo{Name: "none", Loaded: false}
	}
	return e.backend.ModelInfo()
}

// ClearCache empties the semantic cache and the exact-match shortcut,
// returning the number of semantic entries removed.
func (e *Engine) ClearCache(ctx context.Context) int {
	if e.promptCache != nil {
		e.promptCache.Clear()
	}
	removed := e.cache.InvalidateAll(ctx)
	if e.metrics != nil {
		e.metrics.SetCacheEntries(e.cache.Stats().Entries)
	}
	return removed
}

// InvalidatePrompt removes the cached entries for one exact prompt.
func (e *Engine) InvalidatePrompt(ctx context.Context, promptText string) int {
	if e.promptCache != nil {
		e.promptCache.Clear()
	}
	removed := e.cache.Invalidate(ctx, promptText)
	if e.metrics != nil {
		e.metrics.SetCacheEntries(e.cache.Stats().Entries)
	}
	return removed
}

// AddDocuments ingests chunks into the retrieval store. Without a store
// configured this is a no-op returning zero.
func (e *Engine) AddDocuments(ctx context.Context, chunks []types.DocumentChunk) int {
	if e.retrieval == nil {
		return 0
	}
	return e.retrieval.Add(ctx, chunks)
}

// SearchDocuments queries the retrieval store directly.
func (e *Engine) SearchDocuments(ctx context.Context, query string, k int) ([]types.DocumentChunk, error) {
	if e.retrieval == nil {
		return nil, nil
	}
	return e.retrieval.Search(ctx, query, k, 0)
}

// ClearDocuments resets the retrieval store.
func (e *Engine) ClearDocuments(ctx context.Context) int {
	if e.retrieval == nil {
		return 0
	}
	return e.retrieval.Clear(ctx)
}

// Close shuts down the batch scheduler. In-flight requests finish; queued
// requests are rejected.
func (e *Engine) Close() {
	e.batcher.Close()
}

// fillParams applies engine defaults to unset parameters.
func fillParams(p types.GenerationParams) types.GenerationParams {
	def := types.DefaultGenerationParams()
	if p.MaxTokens <= 0 {
		p.MaxTokens = def.MaxTokens
	}
	if p.Temperature <= 0 {
		p.Temperature = def.Temperature
	}
	if p.TopP <= 0 {
		p.TopP = def.TopP
	}
	return p
}

// demoResponse is returned when no inference backend is loaded.
func demoResponse(promptText string) string {
	preview := promptText
	if len(preview) > 50 {
		preview = preview[:50] + "..."
	}
	return fmt.Sprintf("This is a demo response; no model is loaded. Your prompt was: %s", preview)
}
