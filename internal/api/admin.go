package api

import (
	"net/http"
)

// handleHealth serves GET /health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := h.engine.ModelInfo()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"model_loaded": info.Loaded,
	})
}

// handleModelInfo serves GET /api/model/info: the backend load state
// together with the cache and engine counters.
func (h *Handler) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	stats := h.engine.Stats()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"model": h.engine.ModelInfo(),
		"cache": stats.Cache,
		"engine": map[string]any{
			"total_requests":     stats.TotalRequests,
			"cache_hits":         stats.CacheHits,
			"cache_hit_rate":     stats.CacheHitRate,
			"avg_lookup_time_ms": stats.AvgLookupTimeMS,
		},
	})
}

// handleStats serves GET /api/stats.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Stats())
}

// handleCacheClear serves POST /api/cache/clear.
func (h *Handler) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	removed := h.engine.ClearCache(r.Context())
	h.logger.Info("cache cleared", "entries_removed", removed)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"removed": removed,
	})
}
