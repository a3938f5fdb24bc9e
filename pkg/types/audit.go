package types

import "time"

// AuditRecord is one generation outcome written to the audit trail.
type AuditRecord struct {
	RequestID  string    `json:"request_id"`
	Timestamp  time.Time `json:"timestamp"`
	CacheHit   bool      `json:"cache_hit"`
	Similarity float64   `json:"similarity"`
	Blocked    bool      `json:"blocked"`
	ThreatType string    `json:"threat_type,omitempty"`
	Demo       bool      `json:"demo,omitempty"`
	Tokens     int       `json:"tokens"`
	LatencyMS  int64     `json:"latency_ms"`
	Error      string    `json:"error,omitempty"`
}
