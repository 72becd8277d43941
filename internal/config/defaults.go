package config

import "time"

// Defaults for settings where zero is a meaningful value. Load seeds them before parsing so
// that an explicit 0 in the file is kept.
const (
	DefaultOverlap        = 30
	DefaultScoreThreshold = 0.55
)

// DefaultEmbeddingProviders is Ollama first, then Gemini's OpenAI-compatible endpoint.
func DefaultEmbeddingProviders() []ProviderConfig {
	return []ProviderConfig{
		{
			Name:    "ollama",
			Kind:    KindOpenAI,
			BaseURL: "${OLLAMA_HOST:-http://localhost:11434}/v1",
			Model:   "${OLLAMA_EMBED_MODEL:-nomic-embed-text:latest}",
			Probe:   true,
		},
		{
			Name:       "gemini",
			Kind:       KindOpenAI,
			BaseURL:    "https://generativelanguage.googleapis.com/v1beta/openai/",
			APIKey:     "${GEMINI_API_KEY}",
			RequireKey: true,
			Model:      "${GEMINI_EMBED_MODEL:-text-embedding-004}",
		},
	}
}

// DefaultGenerationProviders is Gemini first, then Ollama.
func DefaultGenerationProviders() []ProviderConfig {
	return []ProviderConfig{
		{
			Name:       "gemini",
			Kind:       KindOpenAI,
			BaseURL:    "https://generativelanguage.googleapis.com/v1beta/openai/",
			APIKey:     "${GEMINI_API_KEY}",
			RequireKey: true,
			Model:      "${GEMINI_MODEL:-gemini-1.5-flash}",
		},
		{
			Name:    "ollama",
			Kind:    KindOpenAI,
			BaseURL: "${OLLAMA_HOST:-http://localhost:11434}/v1",
			Model:   "${OLLAMA_MODEL:-gemma3:1b}",
			Probe:   true,
		},
	}
}

// ApplyDefaults sets default values for any zero values in cfg, including Overlap and
// ScoreThreshold.
func ApplyDefaults(cfg *Config) {
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = DefaultOverlap
	}
	if cfg.Retrieval.ScoreThreshold == 0 {
		cfg.Retrieval.ScoreThreshold = DefaultScoreThreshold
	}
	applyDefaults(cfg)
}

// seeded returns a Config carrying the defaults that cannot be told apart from an explicit
// zero once parsed.
func seeded() Config {
	return Config{
		Chunking:  ChunkingConfig{Overlap: DefaultOverlap},
		Retrieval: RetrievalConfig{ScoreThreshold: DefaultScoreThreshold},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.LogPath == "" {
		cfg.LogPath = "${LOG_PATH}"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 50
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "${VECTOR_STORE_PATH:-/usr/local/var/kotae/store/index.vec}"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/db/sources.db"
	}
	if cfg.Storage.IndexType == "" {
		cfg.Storage.IndexType = IndexMemory
	}
	if cfg.Storage.UploadsDir == "" {
		cfg.Storage.UploadsDir = "${INGEST_DATA_DIR:-/usr/local/var/kotae/uploads}"
	}
	if cfg.Chunking.MaxWords == 0 {
		cfg.Chunking.MaxWords = 220
	}
	if cfg.Chunking.EmbedBatchSize == 0 {
		cfg.Chunking.EmbedBatchSize = 64
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Assistant.Topic == "" {
		cfg.Assistant.Topic = "HR policy"
	}
	if cfg.Providers.Timeout == 0 {
		cfg.Providers.Timeout = 60 * time.Second
	}
	if cfg.Providers.StreamTimeout == 0 {
		cfg.Providers.StreamTimeout = 5 * time.Minute
	}
	if cfg.Providers.CacheSize == 0 {
		cfg.Providers.CacheSize = 10000
	}
	if cfg.Providers.Embedding == nil {
		cfg.Providers.Embedding = DefaultEmbeddingProviders()
	}
	if cfg.Providers.Generation == nil {
		cfg.Providers.Generation = DefaultGenerationProviders()
	}
	for _, list := range [][]ProviderConfig{cfg.Providers.Embedding, cfg.Providers.Generation} {
		for i := range list {
			if list[i].Kind == "" {
				list[i].Kind = KindOpenAI
			}
			if list[i].Kind == KindONNX && list[i].MaxTokens == 0 {
				list[i].MaxTokens = 256
			}
			if (list[i].Kind == KindONNX || list[i].Kind == KindMock) && list[i].Dimensions == 0 {
				list[i].Dimensions = 384
			}
		}
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".pdf", ".docx", ".pptx", ".xlsx", ".odp", ".ods", ".txt", ".md"}
	}
}
