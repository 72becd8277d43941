// Package failover runs an operation against an ordered list of providers, skipping those
// that report themselves unavailable and falling through on failure, and reports every
// attempt when none succeeds.
package failover

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnavailable marks a provider that reported itself unavailable and was skipped.
	ErrUnavailable = errors.New("provider unavailable")
	// ErrExhausted matches any *ExhaustedError via errors.Is.
	ErrExhausted = errors.New("all providers exhausted")
	// ErrNoProviders is the last error of an ExhaustedError when the list was empty.
	ErrNoProviders = errors.New("no providers configured")
)

// Status is a point-in-time availability snapshot of one provider.
type Status struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

// Outcome is the result of one provider attempt.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeFailed      Outcome = "failed"
)

// Attempt records what happened when one provider was tried.
type Attempt struct {
	Provider string
	Outcome  Outcome
	Err      error
}

// ExhaustedError is returned when every provider was skipped or failed.
type ExhaustedError struct {
	Op       string
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("%s: %v: %v", e.Op, ErrExhausted, ErrNoProviders)
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s: %v", a.Provider, a.Outcome, a.Err))
	}
	return fmt.Sprintf("%s: %v (%s)", e.Op, ErrExhausted, strings.Join(parts, "; "))
}

// Is reports whether target is ErrExhausted.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// Unwrap returns the last underlying error.
func (e *ExhaustedError) Unwrap() error {
	return e.Last()
}

// Last returns the error of the final attempt, or ErrNoProviders.
func (e *ExhaustedError) Last() error {
	if len(e.Attempts) == 0 {
		return ErrNoProviders
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// Provider is anything that can be tried in order.
type Provider interface {
	Name() string
	Status(ctx context.Context) Status
}

// Observer is notified of every attempt, including the successful one.
type Observer func(Attempt)

// Do tries call against each provider in order. Each attempt, including its status check,
// runs under its own deadline when timeout is positive; a deadline expiry counts as a failure.
// It returns the first successful value and the name of the provider that produced it.
func Do[P Provider, T any](ctx context.Context, op string, providers []P, timeout time.Duration, observe Observer, call func(context.Context, P) (T, error)) (T, string, error) {
	var zero T
	exhausted := &ExhaustedError{Op: op}
	record := func(a Attempt) {
		if a.Outcome != OutcomeSuccess {
			exhausted.Attempts = append(exhausted.Attempts, a)
		}
		if observe != nil {
			observe(a)
		}
	}

	for _, p := range providers {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}
		value, err := attempt(ctx, p, timeout, call)
		switch {
		case err == nil:
			record(Attempt{Provider: p.Name(), Outcome: OutcomeSuccess})
			return value, p.Name(), nil
		case errors.Is(err, ErrUnavailable):
			record(Attempt{Provider: p.Name(), Outcome: OutcomeUnavailable, Err: err})
		default:
			record(Attempt{Provider: p.Name(), Outcome: OutcomeFailed, Err: err})
		}
	}
	return zero, "", exhausted
}

func attempt[P Provider, T any](ctx context.Context, p P, timeout time.Duration, call func(context.Context, P) (T, error)) (T, error) {
	var zero T
	actx, cancel := WithTimeout(ctx, timeout)
	defer cancel()

	if st := p.Status(actx); !st.Available {
		return zero, Unavailable(st)
	}
	value, err := call(actx, p)
	if err != nil {
		if actx.Err() != nil && ctx.Err() == nil {
			return zero, fmt.Errorf("deadline of %s exceeded: %w", timeout, err)
		}
		return zero, err
	}
	return value, nil
}

// WithTimeout is context.WithTimeout that treats a non-positive timeout as no deadline.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// Unavailable builds the error recorded for a provider that reported st.
func Unavailable(st Status) error {
	if st.Detail == "" {
		return ErrUnavailable
	}
	return fmt.Errorf("%w: %s", ErrUnavailable, st.Detail)
}

// Statuses collects a status snapshot for every provider. It never fails.
func Statuses[P Provider](ctx context.Context, providers []P) []Status {
	out := make([]Status, 0, len(providers))
	for _, p := range providers {
		st := p.Status(ctx)
		if st.Name == "" {
			st.Name = p.Name()
		}
		out = append(out, st)
	}
	return out
}
