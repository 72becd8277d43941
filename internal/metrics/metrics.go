// Package metrics exposes Prometheus collectors for provider failover, answers, and the index.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	registry       *prometheus.Registry
	attempts       *prometheus.CounterVec
	answers        *prometheus.CounterVec
	ingestedChunks prometheus.Counter
	removedChunks  prometheus.Counter
	indexChunks    prometheus.Gauge
}

// New creates and registers all collectors, including Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kotae",
			Name:      "provider_attempts_total",
			Help:      "Provider attempts by router kind, provider and outcome.",
		}, []string{"kind", "provider", "outcome"}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kotae",
			Name:      "answers_total",
			Help:      "Answered questions by intent and grounding.",
		}, []string{"intent", "grounded"}),
		ingestedChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kotae",
			Name:      "ingested_chunks_total",
			Help:      "Chunks added to the vector index.",
		}),
		removedChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kotae",
			Name:      "removed_chunks_total",
			Help:      "Chunks removed from the vector index.",
		}),
		indexChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kotae",
			Name:      "index_chunks",
			Help:      "Chunks currently held by the vector index.",
		}),
	}
	reg.MustRegister(
		m.attempts, m.answers, m.ingestedChunks, m.removedChunks, m.indexChunks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveAttempt counts one provider attempt.
func (m *Metrics) ObserveAttempt(kind, provider, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(kind, provider, outcome).Inc()
}

// ObserveAnswer counts one answered question.
func (m *Metrics) ObserveAnswer(intent string, grounded bool) {
	if m == nil {
		return
	}
	m.answers.WithLabelValues(intent, strconv.FormatBool(grounded)).Inc()
}

// ChunksIngested adds n to the ingested chunk counter.
func (m *Metrics) ChunksIngested(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ingestedChunks.Add(float64(n))
}

// ChunksRemoved adds n to the removed chunk counter.
func (m *Metrics) ChunksRemoved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.removedChunks.Add(float64(n))
}

// SetIndexSize records the current number of indexed chunks.
func (m *Metrics) SetIndexSize(n int) {
	if m == nil {
		return
	}
	m.indexChunks.Set(float64(n))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
