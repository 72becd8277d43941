package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// defaultMockResponse is what a mock generation provider answers when no model is set.
const defaultMockResponse = "This is a mock answer."

// Components holds initialized services.
type Components struct {
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Registry   storage.Storage
	Embedders  *embedding.Router
	Generators *llm.Router
	Store      *vector.Store
	Indexer    *indexer.Indexer
	Engine     *rag.Engine

	closers []func() error
}

// Deps returns the components in the shape the HTTP server expects.
func (c *Components) Deps() server.Deps {
	return server.Deps{
		Engine:     c.Engine,
		Indexer:    c.Indexer,
		Store:      c.Store,
		Registry:   c.Registry,
		Embedders:  c.Embedders,
		Generators: c.Generators,
		Metrics:    c.Metrics,
		Config:     c.Config,
		Logger:     c.Logger,
	}
}

func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Components{Config: cfg, Logger: logger, Metrics: metrics.New()}

	registry, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Registry = registry
	c.closers = append(c.closers, registry.Close)

	embedders := buildEmbeddingProviders(cfg.Providers.Embedding, logger, c)
	c.Embedders = embedding.NewRouter(embedders,
		embedding.WithLogger(logger),
		embedding.WithTimeout(cfg.Providers.Timeout),
		embedding.WithCacheSize(cfg.Providers.CacheSize),
		embedding.WithMetrics(c.Metrics),
	)
	c.Generators = llm.NewRouter(buildGenerationProviders(cfg.Providers.Generation),
		llm.WithLogger(logger),
		llm.WithTimeout(cfg.Providers.Timeout),
		llm.WithStreamTimeout(cfg.Providers.StreamTimeout),
		llm.WithMetrics(c.Metrics),
	)

	c.Store = vector.Open(cfg.Storage.IndexPath, c.Embedders,
		vector.WithLogger(logger),
		vector.WithMetrics(c.Metrics),
		vector.WithIndexType(cfg.Storage.IndexType),
	)
	c.closers = append(c.closers, c.Store.Close)
	logger.Info("vector store opened",
		zap.String("path", cfg.Storage.IndexPath),
		zap.String("index_type", string(c.Store.IndexType())),
		zap.String("load_state", string(c.Store.LoadState())),
		zap.Int("chunks", c.Store.Len()),
	)

	c.Indexer = indexer.NewIndexer(
		c.Store,
		registry,
		indexer.NewChunker(cfg.Chunking.MaxWords, cfg.Chunking.Overlap),
		extract.NewExtractor(),
		indexer.WithLogger(logger),
		indexer.WithBatchSize(cfg.Chunking.EmbedBatchSize),
	)
	c.Engine = rag.NewEngine(c.Store, c.Generators,
		rag.WithLogger(logger),
		rag.WithMetrics(c.Metrics),
		rag.WithTopK(cfg.Retrieval.TopK),
		rag.WithThreshold(cfg.Retrieval.ScoreThreshold),
		rag.WithPrompts(rag.NewPrompts(cfg.Assistant.Topic, cfg.Assistant.TopicExamples)),
	)
	return c, nil
}

// buildEmbeddingProviders turns config entries into providers in priority order. An ONNX
// model that cannot be loaded stays in the list as a disabled provider, so status shows why.
func buildEmbeddingProviders(entries []config.ProviderConfig, logger *zap.Logger, c *Components) []embedding.Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	providers := make([]embedding.Provider, 0, len(entries))
	for _, p := range entries {
		switch p.Kind {
		case config.KindONNX:
			onnx, err := embedding.NewONNXProvider(p.Name, p.ModelPath, p.Dimensions, p.MaxTokens)
			if err != nil {
				logger.Warn("onnx embedding provider disabled", zap.String("provider", p.Name), zap.Error(err))
				providers = append(providers, embedding.NewDisabledProvider(p.Name, err.Error()))
				continue
			}
			c.closers = append(c.closers, onnx.Close)
			providers = append(providers, onnx)
		case config.KindMock:
			providers = append(providers, embedding.NewMockProvider(p.Name, p.Dimensions))
		default:
			providers = append(providers, embedding.NewOpenAIProvider(embedding.OpenAIConfig{
				Name:       p.Name,
				BaseURL:    p.BaseURL,
				APIKey:     p.APIKey,
				RequireKey: p.RequireKey,
				Model:      p.Model,
				Probe:      p.Probe,
			}))
		}
	}
	return providers
}

func buildGenerationProviders(entries []config.ProviderConfig) []llm.Provider {
	providers := make([]llm.Provider, 0, len(entries))
	for _, p := range entries {
		switch p.Kind {
		case config.KindMock:
			response := p.Model
			if response == "" {
				response = defaultMockResponse
			}
			providers = append(providers, llm.NewMockProvider(p.Name, response))
		default:
			providers = append(providers, llm.NewOpenAIProvider(llm.OpenAIConfig{
				Name:       p.Name,
				BaseURL:    p.BaseURL,
				APIKey:     p.APIKey,
				RequireKey: p.RequireKey,
				Model:      p.Model,
				Probe:      p.Probe,
				MaxTokens:  p.MaxTokens,
			}))
		}
	}
	return providers
}
