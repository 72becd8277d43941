package embedding

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperjump/kotae/internal/failover"
)

// OpenAIConfig configures a provider speaking the OpenAI embeddings API. Ollama
// (http://localhost:11434/v1) and Gemini's OpenAI endpoint both qualify.
type OpenAIConfig struct {
	Name       string
	BaseURL    string
	APIKey     string
	RequireKey bool
	Model      string
	// Probe lists the endpoint's models on every status check.
	Probe bool
}

// OpenAIProvider embeds text with an OpenAI-compatible endpoint.
type OpenAIProvider struct {
	cfg    OpenAIConfig
	client *openai.Client
}

// NewOpenAIProvider creates a provider. No network call is made until first use.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &OpenAIProvider{cfg: cfg, client: openai.NewClientWithConfig(oc)}
}

func (p *OpenAIProvider) Name() string { return p.cfg.Name }

// Status reports unavailable when a required API key is missing or the probe fails.
func (p *OpenAIProvider) Status(ctx context.Context) failover.Status {
	st := failover.Status{Name: p.cfg.Name}
	if p.cfg.RequireKey && p.cfg.APIKey == "" {
		st.Detail = "API key missing"
		return st
	}
	if p.cfg.Probe {
		if _, err := p.client.ListModels(ctx); err != nil {
			st.Detail = err.Error()
			return st
		}
	}
	st.Available = true
	st.Detail = p.cfg.Model
	return st
}

// Embed sends all texts in one request and returns the vectors in input order.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(p.cfg.Model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("%s embeddings request: %w", p.cfg.Name, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d texts", p.cfg.Name, len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			idx = i
		}
		v := make([]float32, len(d.Embedding))
		for j := range d.Embedding {
			v[j] = float32(d.Embedding[j])
		}
		out[idx] = v
	}
	for i, v := range out {
		if len(v) == 0 {
			return nil, fmt.Errorf("%s: empty embedding at position %d", p.cfg.Name, i)
		}
	}
	return out, nil
}
