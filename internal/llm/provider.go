// Package llm generates answers through an ordered list of chat providers with failover,
// either as one completion or as a lazily selected token stream.
package llm

import (
	"context"

	"github.com/hyperjump/kotae/internal/failover"
)

// Provider generates text for a prompt.
type Provider interface {
	Name() string
	Status(ctx context.Context) failover.Status
	Generate(ctx context.Context, prompt string) (string, error)
	// Stream opens a fragment stream. The reader is bound to ctx; cancelling ctx aborts it.
	Stream(ctx context.Context, prompt string) (FragmentReader, error)
}

// FragmentReader yields text fragments in order. Recv returns io.EOF after the last one.
type FragmentReader interface {
	Recv() (string, error)
	Close() error
}
