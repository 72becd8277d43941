package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_counters(t *testing.T) {
	m := New()
	m.ObserveAttempt("embedding", "ollama", "failed")
	m.ObserveAttempt("embedding", "ollama", "failed")
	m.ObserveAttempt("embedding", "gemini", "success")
	m.ObserveAnswer("policy", true)
	m.ChunksIngested(5)
	m.ChunksRemoved(2)
	m.SetIndexSize(3)

	if got := testutil.ToFloat64(m.attempts.WithLabelValues("embedding", "ollama", "failed")); got != 2 {
		t.Errorf("failed attempts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.answers.WithLabelValues("policy", "true")); got != 1 {
		t.Errorf("answers = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ingestedChunks); got != 5 {
		t.Errorf("ingested = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.indexChunks); got != 3 {
		t.Errorf("index size = %v, want 3", got)
	}
}

func TestMetrics_nilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveAttempt("generation", "x", "success")
	m.ObserveAnswer("chitchat", false)
	m.ChunksIngested(1)
	m.ChunksRemoved(1)
	m.SetIndexSize(1)
	if m.Registry() != nil {
		t.Error("nil metrics should have nil registry")
	}
}

func TestMetrics_handler(t *testing.T) {
	m := New()
	m.ObserveAttempt("generation", "gemini", "success")
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "kotae_provider_attempts_total") {
		t.Error("exposition should include provider attempts counter")
	}
}
