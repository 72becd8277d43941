package models

import "github.com/hyperjump/kotae/internal/failover"

// ProvidersReport lists the availability of every configured provider, in priority order.
type ProvidersReport struct {
	Embedding  []failover.Status `json:"embedding"`
	Generation []failover.Status `json:"generation"`
}

// StatusReport describes the index, its artifacts and the active retrieval settings.
type StatusReport struct {
	Chunks         int           `json:"chunks"`
	Sources        int           `json:"sources"`
	Dimension      int           `json:"dimension"`
	LoadState      string        `json:"load_state"`
	IndexType      string        `json:"index_type"`
	DiskUsageBytes *int64        `json:"disk_usage_bytes,omitempty"`
	Config         *StatusConfig `json:"config,omitempty"`
}

// StatusConfig is the subset of configuration reported by status.
type StatusConfig struct {
	IndexPath      string  `json:"index_path,omitempty"`
	MetadataPath   string  `json:"metadata_path,omitempty"`
	DatabasePath   string  `json:"database_path,omitempty"`
	UploadsDir     string  `json:"uploads_dir,omitempty"`
	MaxWords       int     `json:"max_words"`
	Overlap        int     `json:"overlap"`
	TopK           int     `json:"top_k"`
	ScoreThreshold float64 `json:"score_threshold"`
	Topic          string  `json:"topic,omitempty"`
}
