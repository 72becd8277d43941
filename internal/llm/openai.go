package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperjump/kotae/internal/failover"
)

// OpenAIConfig configures a provider speaking the OpenAI chat completions API.
type OpenAIConfig struct {
	Name       string
	BaseURL    string
	APIKey     string
	RequireKey bool
	Model      string
	Probe      bool
	MaxTokens  int
}

// OpenAIProvider generates text with an OpenAI-compatible chat endpoint such as Ollama or
// Gemini's OpenAI layer.
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

func (p *OpenAIProvider) request(prompt string, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: p.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: p.cfg.MaxTokens,
		Stream:    stream,
	}
}

// Generate returns the content of the first choice.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.request(prompt, false))
	if err != nil {
		return "", fmt.Errorf("%s chat request: %w", p.cfg.Name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", p.cfg.Name)
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream opens a server-sent chat completion stream.
func (p *OpenAIProvider) Stream(ctx context.Context, prompt string) (FragmentReader, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.request(prompt, true))
	if err != nil {
		return nil, fmt.Errorf("%s chat stream: %w", p.cfg.Name, err)
	}
	return &openAIReader{name: p.cfg.Name, stream: stream}, nil
}

type openAIReader struct {
	name   string
	stream *openai.ChatCompletionStream
}

// Recv skips chunks without content, such as the role-only first delta.
func (r *openAIReader) Recv() (string, error) {
	for {
		resp, err := r.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("%s stream: %w", r.name, err)
		}
		var b strings.Builder
		for _, c := range resp.Choices {
			b.WriteString(c.Delta.Content)
		}
		if b.Len() > 0 {
			return b.String(), nil
		}
	}
}

func (r *openAIReader) Close() error {
	return r.stream.Close()
}
