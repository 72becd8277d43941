package failover

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeProvider struct {
	name      string
	available bool
	err       error
	delay     time.Duration
	calls     int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Status(context.Context) Status {
	return Status{Name: f.name, Available: f.available, Detail: map[bool]string{true: "", false: "down"}[f.available]}
}

func (f *fakeProvider) call(ctx context.Context) (string, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return "result from " + f.name, nil
}

func run(ctx context.Context, providers []*fakeProvider, timeout time.Duration, observe Observer) (string, string, error) {
	return Do(ctx, "test", providers, timeout, observe, func(ctx context.Context, p *fakeProvider) (string, error) {
		return p.call(ctx)
	})
}

func TestDo_failoverOrder(t *testing.T) {
	a := &fakeProvider{name: "A", available: false}
	b := &fakeProvider{name: "B", available: true, err: errors.New("boom")}
	c := &fakeProvider{name: "C", available: true}
	d := &fakeProvider{name: "D", available: true}

	var attempts []Attempt
	got, name, err := run(context.Background(), []*fakeProvider{a, b, c, d}, 0, func(at Attempt) {
		attempts = append(attempts, at)
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != "result from C" || name != "C" {
		t.Errorf("got %q from %q, want C's result", got, name)
	}
	if a.calls != 0 {
		t.Error("unavailable provider A must not be called")
	}
	if b.calls != 1 || c.calls != 1 {
		t.Errorf("calls: B=%d C=%d, want 1 each", b.calls, c.calls)
	}
	if d.calls != 0 {
		t.Error("no provider may be called after a success")
	}
	want := []Outcome{OutcomeUnavailable, OutcomeFailed, OutcomeSuccess}
	if len(attempts) != len(want) {
		t.Fatalf("attempts = %+v", attempts)
	}
	for i, o := range want {
		if attempts[i].Outcome != o {
			t.Errorf("attempt %d outcome = %s, want %s", i, attempts[i].Outcome, o)
		}
	}
}

func TestDo_exhausted(t *testing.T) {
	last := errors.New("quota exceeded")
	a := &fakeProvider{name: "A", available: false}
	b := &fakeProvider{name: "B", available: true, err: last}

	_, _, err := run(context.Background(), []*fakeProvider{a, b}, 0, nil)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if !errors.Is(err, last) {
		t.Errorf("exhausted error should unwrap to the last error, got %v", err)
	}
	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatal("expected *ExhaustedError")
	}
	if len(ex.Attempts) != 2 || ex.Attempts[0].Outcome != OutcomeUnavailable || ex.Attempts[1].Outcome != OutcomeFailed {
		t.Errorf("unexpected attempts: %+v", ex.Attempts)
	}
	if !strings.Contains(err.Error(), "A: unavailable") || !strings.Contains(err.Error(), "B: failed") {
		t.Errorf("error message should list attempts: %v", err)
	}
}

func TestDo_noProviders(t *testing.T) {
	_, _, err := run(context.Background(), nil, 0, nil)
	if !errors.Is(err, ErrExhausted) || !errors.Is(err, ErrNoProviders) {
		t.Errorf("expected exhausted with no providers, got %v", err)
	}
}

func TestDo_timeoutAdvances(t *testing.T) {
	slow := &fakeProvider{name: "slow", available: true, delay: time.Second}
	fast := &fakeProvider{name: "fast", available: true}

	got, name, err := run(context.Background(), []*fakeProvider{slow, fast}, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if name != "fast" || got != "result from fast" {
		t.Errorf("got %q from %q", got, name)
	}
}

func TestDo_cancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := &fakeProvider{name: "A", available: true}
	_, _, err := run(ctx, []*fakeProvider{a}, 0, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if a.calls != 0 {
		t.Error("no provider should be called after cancellation")
	}
}

func TestStatuses(t *testing.T) {
	got := Statuses(context.Background(), []*fakeProvider{
		{name: "A", available: true},
		{name: "B", available: false},
	})
	if len(got) != 2 || !got[0].Available || got[1].Available || got[1].Detail != "down" {
		t.Errorf("unexpected statuses: %+v", got)
	}
}
