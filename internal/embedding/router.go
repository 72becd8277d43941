package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/failover"
	"github.com/hyperjump/kotae/internal/metrics"
)

// Router embeds text with the first provider in its list that is available and succeeds.
type Router struct {
	providers []Provider
	timeout   time.Duration
	cache     *EmbeddingCache
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger for failover events.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithTimeout bounds every provider attempt. Zero means no deadline.
func WithTimeout(d time.Duration) Option {
	return func(r *Router) { r.timeout = d }
}

// WithCacheSize enables an LRU cache of the given capacity. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.cache = NewEmbeddingCache(n)
		} else {
			r.cache = nil
		}
	}
}

// WithMetrics records every attempt outcome.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// NewRouter returns a router over providers, tried in the given order.
func NewRouter(providers []Provider, opts ...Option) *Router {
	r := &Router{providers: providers, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Embed returns one vector per text. When every provider is skipped or fails the error
// is a *failover.ExhaustedError carrying each attempt.
func (r *Router) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, name, err := failover.Do(ctx, "embed", r.providers, r.timeout, r.observe, func(ctx context.Context, p Provider) ([][]float32, error) {
		return r.embedWith(ctx, p, texts)
	})
	if err != nil {
		r.logger.Error("no embedding provider succeeded", zap.Int("texts", len(texts)), zap.Error(err))
		return nil, err
	}
	r.logger.Debug("embedded texts", zap.String("provider", name), zap.Int("texts", len(texts)))
	return vectors, nil
}

// Statuses returns an availability snapshot of every provider, in order.
func (r *Router) Statuses(ctx context.Context) []failover.Status {
	return failover.Statuses(ctx, r.providers)
}

func (r *Router) embedWith(ctx context.Context, p Provider, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if r.cache != nil {
			if v, ok := r.cache.Get(p.Name(), text); ok {
				out[i] = v
				continue
			}
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		vectors, err := p.Embed(ctx, missing)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(missing) {
			return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(missing))
		}
		for j, v := range vectors {
			out[missingIdx[j]] = v
		}
	}

	dim := len(out[0])
	for i, v := range out {
		if len(v) == 0 || len(v) != dim {
			return nil, fmt.Errorf("provider returned ragged vectors: position %d has %d dimensions, want %d", i, len(v), dim)
		}
	}
	if r.cache != nil {
		for j, idx := range missingIdx {
			r.cache.Set(p.Name(), missing[j], out[idx])
		}
	}
	return out, nil
}

func (r *Router) observe(a failover.Attempt) {
	r.metrics.ObserveAttempt("embedding", a.Provider, string(a.Outcome))
	switch a.Outcome {
	case failover.OutcomeUnavailable:
		r.logger.Info("embedding provider unavailable, skipping", zap.String("provider", a.Provider), zap.Error(a.Err))
	case failover.OutcomeFailed:
		r.logger.Warn("embedding provider failed, trying next", zap.String("provider", a.Provider), zap.Error(a.Err))
	}
}
