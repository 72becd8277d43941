package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/failover"
	"github.com/hyperjump/kotae/internal/metrics"
)

// DefaultStreamTimeout bounds one streaming attempt, from opening to the last fragment.
const DefaultStreamTimeout = 5 * time.Minute

// Router generates text with the first provider in its list that is available and succeeds.
type Router struct {
	providers     []Provider
	timeout       time.Duration
	streamTimeout time.Duration
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger for failover events.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithTimeout bounds every Generate attempt. Zero means no deadline.
func WithTimeout(d time.Duration) Option {
	return func(r *Router) { r.timeout = d }
}

// WithStreamTimeout bounds every streaming attempt. Zero means no deadline.
func WithStreamTimeout(d time.Duration) Option {
	return func(r *Router) { r.streamTimeout = d }
}

// WithMetrics records every attempt outcome.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// NewRouter returns a router over providers, tried in the given order.
func NewRouter(providers []Provider, opts ...Option) *Router {
	r := &Router{
		providers:     providers,
		streamTimeout: DefaultStreamTimeout,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Generate returns the completion of the first provider that succeeds. When every provider
// is skipped or fails the error is a *failover.ExhaustedError.
func (r *Router) Generate(ctx context.Context, prompt string) (string, error) {
	text, name, err := failover.Do(ctx, "generate", r.providers, r.timeout, r.observe, func(ctx context.Context, p Provider) (string, error) {
		return p.Generate(ctx, prompt)
	})
	if err != nil {
		r.logger.Error("no generation provider succeeded", zap.Error(err))
		return "", err
	}
	r.logger.Debug("generated answer", zap.String("provider", name), zap.Int("chars", len(text)))
	return text, nil
}

// Stream returns a lazy token stream for prompt. No provider is contacted until the first
// call to Next.
func (r *Router) Stream(ctx context.Context, prompt string) *Stream {
	return &Stream{ctx: ctx, prompt: prompt, router: r}
}

// Statuses returns an availability snapshot of every provider, in order.
func (r *Router) Statuses(ctx context.Context) []failover.Status {
	return failover.Statuses(ctx, r.providers)
}

func (r *Router) observe(a failover.Attempt) {
	r.metrics.ObserveAttempt("generation", a.Provider, string(a.Outcome))
	switch a.Outcome {
	case failover.OutcomeUnavailable:
		r.logger.Info("generation provider unavailable, skipping", zap.String("provider", a.Provider), zap.Error(a.Err))
	case failover.OutcomeFailed:
		r.logger.Warn("generation provider failed, trying next", zap.String("provider", a.Provider), zap.Error(a.Err))
	}
}
