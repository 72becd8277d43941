// Package embedding turns text into vectors through an ordered list of providers with
// failover and a per-provider LRU cache.
package embedding

import (
	"context"

	"github.com/hyperjump/kotae/internal/failover"
)

// Provider produces one vector per input text, in input order.
type Provider interface {
	Name() string
	Status(ctx context.Context) failover.Status
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// DisabledProvider is listed in place of a provider that could not be constructed.
// It always reports itself unavailable with the construction error as detail.
type DisabledProvider struct {
	name   string
	reason string
}

// NewDisabledProvider returns a provider that is never available.
func NewDisabledProvider(name, reason string) *DisabledProvider {
	return &DisabledProvider{name: name, reason: reason}
}

func (p *DisabledProvider) Name() string { return p.name }

func (p *DisabledProvider) Status(context.Context) failover.Status {
	return failover.Status{Name: p.name, Available: false, Detail: p.reason}
}

func (p *DisabledProvider) Embed(context.Context, []string) ([][]float32, error) {
	return nil, failover.Unavailable(failover.Status{Detail: p.reason})
}
