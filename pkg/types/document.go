package types

// DocumentChunk is one retrievable span of an ingested document.
type DocumentChunk struct {
	Text    string `json:"text"`
	Source  string `json:"source"`
	ChunkID int    `json:"chunk_id"`

	// Score is the cosine similarity against the query. Populated only on
	// search results.
	Score float64 `json:"score,omitempty"`
}

// UploadResult summarizes one processed document upload.
type UploadResult struct {
	Filename    string `json:"filename"`
	ChunksAdded int    `json:"chunks_added"`
	ContentHash string `json:"content_hash"`
	Status      string `json:"status"`
}
