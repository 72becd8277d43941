package llm

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/hyperjump/kotae/internal/failover"
)

// MockProvider is a scripted provider for tests and offline use. By default it answers
// every prompt with a fixed response, streamed word by word.
type MockProvider struct {
	name string

	mu         sync.Mutex
	available  bool
	err        error
	respond    func(prompt string) string
	breakAfter int
	breakErr   error
	prompts    []string
	generates  int
	streams    int
	closed     int
}

// NewMockProvider returns an available provider that always answers response.
func NewMockProvider(name, response string) *MockProvider {
	return &MockProvider{
		name:       name,
		available:  true,
		respond:    func(string) string { return response },
		breakAfter: -1,
	}
}

// SetAvailable toggles the reported availability.
func (m *MockProvider) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
}

// SetError makes Generate and Stream fail with err before producing anything.
func (m *MockProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetResponder answers each prompt with fn(prompt).
func (m *MockProvider) SetResponder(fn func(prompt string) string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.respond = fn
}

// BreakAfter makes streams fail with err after n fragments have been delivered.
func (m *MockProvider) BreakAfter(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakAfter = n
	m.breakErr = err
}

// Prompts returns every prompt received, in order.
func (m *MockProvider) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// GenerateCalls returns how many times Generate was invoked.
func (m *MockProvider) GenerateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generates
}

// StreamCalls returns how many streams were requested.
func (m *MockProvider) StreamCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams
}

// ClosedStreams returns how many opened streams have been closed.
func (m *MockProvider) ClosedStreams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) Status(context.Context) failover.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := failover.Status{Name: m.name, Available: m.available}
	if !m.available {
		st.Detail = "disabled"
	}
	return st
}

func (m *MockProvider) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generates++
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.respond(prompt), nil
}

func (m *MockProvider) Stream(ctx context.Context, prompt string) (FragmentReader, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams++
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return nil, m.err
	}
	return &mockReader{
		ctx:        ctx,
		owner:      m,
		fragments:  splitFragments(m.respond(prompt)),
		breakAfter: m.breakAfter,
		breakErr:   m.breakErr,
	}, nil
}

// splitFragments splits s into words that keep their trailing whitespace, so the
// concatenation of the fragments is s.
func splitFragments(s string) []string {
	var out []string
	for _, f := range strings.SplitAfter(s, " ") {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

type mockReader struct {
	ctx        context.Context
	owner      *MockProvider
	fragments  []string
	sent       int
	breakAfter int
	breakErr   error
	closed     bool
}

func (r *mockReader) Recv() (string, error) {
	if err := r.ctx.Err(); err != nil {
		return "", err
	}
	if r.breakAfter >= 0 && r.sent >= r.breakAfter {
		return "", r.breakErr
	}
	if r.sent >= len(r.fragments) {
		return "", io.EOF
	}
	f := r.fragments[r.sent]
	r.sent++
	return f, nil
}

func (r *mockReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.owner.mu.Lock()
	r.owner.closed++
	r.owner.mu.Unlock()
	return nil
}
