// Package config provides configuration loading and structs for the kotae server and CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider kinds.
const (
	KindOpenAI = "openai"
	KindONNX   = "onnx"
	KindMock   = "mock"
)

// Vector index backends.
const (
	IndexMemory = "memory"
	IndexFAISS  = "faiss"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	LogPath   string          `yaml:"log_path"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Assistant AssistantConfig `yaml:"assistant"`
	Providers ProvidersConfig `yaml:"providers"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

// StorageConfig holds paths for the vector index, the source registry and uploads.
// The index metadata sidecar lives next to IndexPath.
type StorageConfig struct {
	IndexPath    string `yaml:"index_path"`
	IndexType    string `yaml:"index_type"`
	DatabasePath string `yaml:"database_path"`
	UploadsDir   string `yaml:"uploads_dir"`
}

// ChunkingConfig holds word-window chunking settings.
type ChunkingConfig struct {
	MaxWords       int `yaml:"max_words"`
	Overlap        int `yaml:"overlap"`
	EmbedBatchSize int `yaml:"embed_batch_size"`
}

// RetrievalConfig holds search and grounding settings.
type RetrievalConfig struct {
	TopK           int     `yaml:"top_k"`
	ScoreThreshold float64 `yaml:"score_threshold"`
}

// AssistantConfig names the topic the assistant answers questions about.
type AssistantConfig struct {
	Topic         string `yaml:"topic"`
	TopicExamples string `yaml:"topic_examples"`
}

// ProvidersConfig lists embedding and generation providers in priority order.
type ProvidersConfig struct {
	Timeout       time.Duration    `yaml:"timeout"`
	StreamTimeout time.Duration    `yaml:"stream_timeout"`
	CacheSize     int              `yaml:"cache_size"`
	Embedding     []ProviderConfig `yaml:"embedding"`
	Generation    []ProviderConfig `yaml:"generation"`
}

// ProviderConfig describes one provider. String fields accept ${VAR} and ${VAR:-default}.
type ProviderConfig struct {
	Name       string `yaml:"name"`
	Kind       string `yaml:"kind"`
	BaseURL    string `yaml:"base_url,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	RequireKey bool   `yaml:"require_key,omitempty"`
	Model      string `yaml:"model,omitempty"`
	Probe      bool   `yaml:"probe,omitempty"`
	ModelPath  string `yaml:"model_path,omitempty"`
	Dimensions int    `yaml:"dimensions,omitempty"`
	MaxTokens  int    `yaml:"max_tokens,omitempty"`
}

// WatchConfig controls ingestion of files dropped into the uploads directory.
type WatchConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Extensions []string `yaml:"extensions"`
}

// Load reads .env files, parses the config file at path, expands environment references
// and paths, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	configDir := filepath.Dir(path)
	if err := LoadEnv(configDir); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := seeded()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	cfg.expand(configDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the default configuration with environment references expanded.
// Relative paths are resolved against dir.
func Default(dir string) *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.expand(dir)
	return cfg
}

// LoadEnv loads .env from dir and then from the working directory. Variables already set
// in the environment are never overridden; missing files are ignored.
func LoadEnv(dir string) error {
	candidates := []string{filepath.Join(dir, ".env")}
	if cwd, err := os.Getwd(); err == nil && cwd != dir {
		candidates = append(candidates, filepath.Join(cwd, ".env"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

func (c *Config) expand(configDir string) {
	c.LogPath = expandEnv(c.LogPath)
	if c.LogPath != "" {
		c.LogPath = expandPath(c.LogPath, configDir)
	}
	c.Storage.IndexPath = expandPath(expandEnv(c.Storage.IndexPath), configDir)
	c.Storage.DatabasePath = expandPath(expandEnv(c.Storage.DatabasePath), configDir)
	c.Storage.UploadsDir = expandPath(expandEnv(c.Storage.UploadsDir), configDir)
	for _, list := range [][]ProviderConfig{c.Providers.Embedding, c.Providers.Generation} {
		for i := range list {
			p := &list[i]
			p.BaseURL = expandEnv(p.BaseURL)
			p.APIKey = expandEnv(p.APIKey)
			p.Model = expandEnv(p.Model)
			if p.ModelPath != "" {
				p.ModelPath = expandPath(expandEnv(p.ModelPath), configDir)
			}
		}
	}
}

// Validate reports provider entries that cannot be built.
func (c *Config) Validate() error {
	var errs []error
	check := func(section string, list []ProviderConfig) {
		seen := make(map[string]bool)
		for i, p := range list {
			if p.Name == "" {
				errs = append(errs, fmt.Errorf("providers.%s[%d]: name is required", section, i))
			} else if seen[p.Name] {
				errs = append(errs, fmt.Errorf("providers.%s[%d]: duplicate name %q", section, i, p.Name))
			}
			seen[p.Name] = true
			switch p.Kind {
			case KindOpenAI, KindMock:
			case KindONNX:
				if section != "embedding" {
					errs = append(errs, fmt.Errorf("providers.%s[%d]: kind %q only supports embedding", section, i, p.Kind))
				}
			default:
				errs = append(errs, fmt.Errorf("providers.%s[%d]: unknown kind %q", section, i, p.Kind))
			}
		}
	}
	check("embedding", c.Providers.Embedding)
	check("generation", c.Providers.Generation)
	switch c.Storage.IndexType {
	case IndexMemory, IndexFAISS:
	default:
		errs = append(errs, fmt.Errorf("storage.index_type: unknown backend %q", c.Storage.IndexType))
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.MaxWords {
		errs = append(errs, fmt.Errorf("chunking.overlap %d outside [0, max_words)", c.Chunking.Overlap))
	}
	if c.Retrieval.ScoreThreshold < -1 || c.Retrieval.ScoreThreshold > 1 {
		errs = append(errs, fmt.Errorf("retrieval.score_threshold %v outside [-1, 1]", c.Retrieval.ScoreThreshold))
	}
	return errors.Join(errs...)
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandEnv replaces ${VAR} and $VAR with the environment value and supports
// ${VAR:-default} for unset or empty variables.
func expandEnv(s string) string {
	return os.Expand(s, func(key string) string {
		name, def, hasDefault := strings.Cut(key, ":-")
		if v := os.Getenv(name); v != "" || !hasDefault {
			return v
		}
		return def
	})
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
