// Package server provides the HTTP API for Kotae.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// requestTimeout bounds every non-streaming request.
const requestTimeout = 60 * time.Second

// Deps are the components the API serves.
type Deps struct {
	Engine     *rag.Engine
	Indexer    *indexer.Indexer
	Store      *vector.Store
	Registry   storage.Storage
	Embedders  *embedding.Router
	Generators *llm.Router
	Metrics    *metrics.Metrics
	Config     *config.Config
	Logger     *zap.Logger
}

// Server is the HTTP server for the Kotae API.
type Server struct {
	deps   Deps
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{deps: deps, logger: logger}
}

// Handler returns the API routes. Streaming answers are exempt from the request timeout
// and from compression so that tokens are flushed as they arrive.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/api/v1/ask/stream", s.handleAskStream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(middleware.Compress(5))

		r.Post("/api/v1/ask", s.handleAsk)
		r.Post("/api/v1/documents", s.handleUpload)
		r.Get("/api/v1/sources", s.handleSources)
		r.Delete("/api/v1/sources/{name}", s.handleRemoveSource)
		r.Get("/api/v1/providers", s.handleProviders)
		r.Get("/api/v1/status", s.handleStatus)
		r.Get("/health", s.handleHealth)
	})
	r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.deps.Config.Server.Host, s.deps.Config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
