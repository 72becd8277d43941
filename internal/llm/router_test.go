package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hyperjump/kotae/internal/failover"
	"github.com/hyperjump/kotae/internal/metrics"
)

func TestRouter_Generate_failoverOrder(t *testing.T) {
	a := NewMockProvider("A", "from A")
	a.SetAvailable(false)
	b := NewMockProvider("B", "from B")
	b.SetError(errors.New("503 service unavailable"))
	c := NewMockProvider("C", "from C")
	d := NewMockProvider("D", "from D")

	m := metrics.New()
	r := NewRouter([]Provider{a, b, c, d}, WithMetrics(m))
	got, err := r.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "from C" {
		t.Errorf("got %q, want answer from C", got)
	}
	if a.GenerateCalls() != 0 || b.GenerateCalls() != 1 || c.GenerateCalls() != 1 || d.GenerateCalls() != 0 {
		t.Errorf("calls A=%d B=%d C=%d D=%d", a.GenerateCalls(), b.GenerateCalls(), c.GenerateCalls(), d.GenerateCalls())
	}
	n, err := testutil.GatherAndCount(m.Registry(), "kotae_provider_attempts_total")
	if err != nil || n != 3 {
		t.Errorf("attempt series = %d (%v), want 3", n, err)
	}
}

func TestRouter_Generate_exhausted(t *testing.T) {
	last := errors.New("quota exceeded")
	a := NewMockProvider("A", "")
	a.SetAvailable(false)
	b := NewMockProvider("B", "")
	b.SetError(last)

	_, err := NewRouter([]Provider{a, b}).Generate(context.Background(), "q")
	var ex *failover.ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("expected *ExhaustedError, got %v", err)
	}
	if len(ex.Attempts) != 2 || ex.Attempts[0].Outcome != failover.OutcomeUnavailable || ex.Attempts[1].Outcome != failover.OutcomeFailed {
		t.Errorf("attempts = %+v", ex.Attempts)
	}
	if !errors.Is(err, last) {
		t.Errorf("last error not wrapped: %v", err)
	}
}

type slowProvider struct{ *MockProvider }

func (p slowProvider) Generate(ctx context.Context, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRouter_Generate_timeoutAdvances(t *testing.T) {
	slow := slowProvider{NewMockProvider("slow", "")}
	fast := NewMockProvider("fast", "ok")

	r := NewRouter([]Provider{slow, fast}, WithTimeout(20*time.Millisecond))
	got, err := r.Generate(context.Background(), "q")
	if err != nil || got != "ok" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestRouter_Statuses(t *testing.T) {
	a := NewMockProvider("gemini", "")
	a.SetAvailable(false)
	b := NewMockProvider("ollama", "")
	st := NewRouter([]Provider{a, b}).Statuses(context.Background())
	if len(st) != 2 || st[0].Name != "gemini" || st[0].Available || !st[1].Available {
		t.Errorf("statuses = %+v", st)
	}
}
