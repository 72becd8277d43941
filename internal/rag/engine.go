package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
)

// DefaultTopK is the number of passages retrieved per question.
const DefaultTopK = 3

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("question is empty")

// Retriever finds the passages most similar to a query.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]models.SearchHit, error)
	Len() int
}

// StreamGenerator generates complete answers and lazy token streams.
type StreamGenerator interface {
	Generator
	Stream(ctx context.Context, prompt string) *llm.Stream
}

// Engine composes answers. It is built once per process and shared by every caller.
type Engine struct {
	retriever  Retriever
	generator  StreamGenerator
	classifier *Classifier
	prompts    *Prompts
	gate       Gate
	topK       int
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics counts answers by intent and grounding.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTopK sets how many passages are retrieved per question.
func WithTopK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithThreshold sets the grounding threshold.
func WithThreshold(t float64) Option {
	return func(e *Engine) { e.gate.Threshold = t }
}

// WithPrompts sets the prompt templates, for example to change the assistant topic.
func WithPrompts(p *Prompts) Option {
	return func(e *Engine) {
		if p != nil {
			e.prompts = p
		}
	}
}

// NewEngine returns an engine answering from retriever with generator.
func NewEngine(retriever Retriever, generator StreamGenerator, opts ...Option) *Engine {
	e := &Engine{
		retriever: retriever,
		generator: generator,
		prompts:   NewPrompts("", ""),
		gate:      Gate{Threshold: DefaultThreshold},
		topK:      DefaultTopK,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.classifier = NewClassifier(generator, e.prompts, e.logger)
	return e
}

// StreamingAnswer is an answer whose citations and grounding are known before any token
// has been generated.
type StreamingAnswer struct {
	Tokens    *llm.Stream
	Citations []models.Citation
	Grounded  bool
	Intent    models.Intent
}

// plan is the outcome of everything that happens before generation. Either prompt or
// static is set.
type plan struct {
	intent    models.Intent
	citations []models.Citation
	grounded  bool
	prompt    string
	static    string
}

// Answer classifies, retrieves, gates and generates a complete answer. Provider exhaustion
// is returned as an error and never reported as a missing answer.
func (e *Engine) Answer(ctx context.Context, question string) (*models.AnswerResult, error) {
	p, err := e.plan(ctx, question)
	if err != nil {
		return nil, err
	}
	result := &models.AnswerResult{
		Citations: p.citations,
		Grounded:  p.grounded,
		Intent:    p.intent,
	}
	if p.prompt == "" {
		result.Answer = p.static
		return result, nil
	}
	text, err := e.generator.Generate(ctx, p.prompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	result.Answer = NormalizeAnswer(text)
	return result, nil
}

// AnswerStream does everything Answer does up to generation and returns the lazy token
// stream. The caller must drain or Close the stream.
func (e *Engine) AnswerStream(ctx context.Context, question string) (*StreamingAnswer, error) {
	p, err := e.plan(ctx, question)
	if err != nil {
		return nil, err
	}
	sa := &StreamingAnswer{
		Citations: p.citations,
		Grounded:  p.grounded,
		Intent:    p.intent,
	}
	if p.prompt == "" {
		sa.Tokens = llm.NewStaticStream(p.static)
	} else {
		sa.Tokens = e.generator.Stream(ctx, p.prompt)
	}
	return sa, nil
}

func (e *Engine) plan(ctx context.Context, question string) (*plan, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return nil, ErrEmptyQuestion
	}
	p := &plan{intent: models.IntentPolicy, citations: []models.Citation{}}
	if e.retriever.Len() == 0 {
		e.logger.Info("question asked before any document was ingested")
		p.static = models.EmptyIndexAnswer
		e.metrics.ObserveAnswer(string(p.intent), false)
		return p, nil
	}

	p.intent = e.classifier.Classify(ctx, q)
	if p.intent != models.IntentPolicy {
		prompt, err := e.prompts.Conversational(q, p.intent)
		if err != nil {
			return nil, err
		}
		p.prompt = prompt
		e.metrics.ObserveAnswer(string(p.intent), false)
		return p, nil
	}

	hits, err := e.retriever.Search(ctx, q, e.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve passages: %w", err)
	}
	kept, grounded := e.gate.Filter(hits)
	e.logger.Debug("retrieved passages",
		zap.Int("hits", len(hits)),
		zap.Int("kept", len(kept)),
		zap.Float64("threshold", e.gate.Threshold))
	e.metrics.ObserveAnswer(string(p.intent), grounded)
	if !grounded {
		p.static = models.NoInformationAnswer
		return p, nil
	}

	prompt, err := e.prompts.Policy(q, kept)
	if err != nil {
		return nil, err
	}
	p.prompt = prompt
	p.grounded = true
	for _, h := range kept {
		p.citations = append(p.citations, models.CitationFromHit(h))
	}
	return p, nil
}

// CollectAnswer drains and closes the token stream and returns the complete result.
func CollectAnswer(sa *StreamingAnswer) (*models.AnswerResult, error) {
	defer sa.Tokens.Close()
	text, err := llm.ReadAll(sa.Tokens)
	if err != nil {
		return nil, err
	}
	return &models.AnswerResult{
		Answer:    NormalizeAnswer(text),
		Citations: sa.Citations,
		Grounded:  sa.Grounded,
		Intent:    sa.Intent,
	}, nil
}

// NormalizeAnswer trims text and replaces an empty answer with the no-information literal.
func NormalizeAnswer(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.NoInformationAnswer
	}
	return text
}
