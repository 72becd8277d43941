// Package models defines core data structures for chunks, retrieval hits, and answers.
package models

import "time"

// Chunk is a contiguous window of words taken from one page or paragraph of a source document.
// It is immutable once created. The JSON form is also the persisted metadata record.
type Chunk struct {
	DocID   string `json:"doc_id"`
	Source  string `json:"source"`
	Page    int    `json:"page"`
	ChunkID string `json:"chunk_id"`
	Text    string `json:"text"`
}

// SearchHit is a chunk returned by similarity search with its cosine score in [-1, 1].
type SearchHit struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// SourceSummary describes one ingested source document.
type SourceSummary struct {
	Source     string    `json:"source"`
	DocID      string    `json:"doc_id"`
	Chunks     int       `json:"chunks"`
	Digest     string    `json:"digest,omitempty"`
	SizeBytes  int64     `json:"size_bytes,omitempty"`
	IngestedAt time.Time `json:"ingested_at,omitempty"`
}
