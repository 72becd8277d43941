package embedding

import (
	"context"
	"math"
	"sync"

	"github.com/hyperjump/kotae/internal/failover"
)

// MockProvider is a deterministic provider for tests and offline use. It returns a
// fixed-dimension vector derived from the text hash so that the same text always gets
// the same embedding. Availability and failure can be toggled.
type MockProvider struct {
	name       string
	dimensions int

	mu        sync.Mutex
	available bool
	err       error
	vectors   map[string][]float32
	calls     int
	texts     int
}

// NewMockProvider returns an available provider producing vectors of the given dimensions.
func NewMockProvider(name string, dimensions int) *MockProvider {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockProvider{name: name, dimensions: dimensions, available: true}
}

// SetAvailable toggles the reported availability.
func (m *MockProvider) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
}

// SetError makes every Embed call fail with err (nil clears it).
func (m *MockProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetVector pins the vector returned for text, overriding the hash-derived one.
func (m *MockProvider) SetVector(text string, v []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vectors == nil {
		m.vectors = make(map[string][]float32)
	}
	m.vectors[text] = v
}

// Calls returns how many times Embed was invoked.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// TextsEmbedded returns the total number of texts sent to Embed.
func (m *MockProvider) TextsEmbedded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.texts
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

// Embed returns one deterministic vector per text.
func (m *MockProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.texts += len(texts)
	if m.err != nil {
		return nil, m.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := m.vectors[text]; ok {
			out[i] = append([]float32(nil), v...)
			continue
		}
		out[i] = hashVector(text, m.dimensions)
	}
	return out, nil
}

func hashVector(text string, dimensions int) []float32 {
	h := HashString(text)
	emb := make([]float32, dimensions)
	for i := range emb {
		emb[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	return emb
}
