package types

// CacheStats is a point-in-time snapshot of the semantic cache.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Dimension  int     `json:"dimension"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	Evictions  int64   `json:"evictions"`
	HitRate    float64 `json:"hit_rate"`
	FillRatio  float64 `json:"fill_ratio"`
}

// BatchStats is a point-in-time snapshot of the batch scheduler. Counters
// are monotone; QueueSize is instantaneous and may be stale by the time the
// caller reads it.
type BatchStats struct {
	TotalRequests    int64   `json:"total_requests"`
	TotalBatches     int64   `json:"total_batches"`
	TotalBatchTimeMS int64   `json:"total_batch_time_ms"`
	AvgBatchSize     float64 `json:"avg_batch_size"`
	QueueSize        int     `json:"queue_size"`
}

// RetrievalStats is a point-in-time snapshot of the document store.
type RetrievalStats struct {
	Chunks    int `json:"chunks"`
	Sources   int `json:"sources"`
	Dimension int `json:"dimension"`
}

// EngineStats aggregates the cached engine and its subsystems.
type EngineStats struct {
	TotalRequests   int64          `json:"total_requests"`
	CacheHits       int64          `json:"cache_hits"`
	CacheHitRate    float64        `json:"cache_hit_rate"`
	AvgLookupTimeMS float64        `json:"avg_lookup_time_ms"`
	Cache           CacheStats     `json:"cache"`
	Batcher         BatchStats     `json:"batcher"`
	Retrieval       RetrievalStats `json:"retrieval"`
}
