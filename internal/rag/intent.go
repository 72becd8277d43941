package rag

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// Generator produces a complete response for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Classifier labels questions with one generation call.
type Classifier struct {
	gen     Generator
	prompts *Prompts
	logger  *zap.Logger
}

// NewClassifier returns a classifier. A nil logger disables logging.
func NewClassifier(gen Generator, prompts *Prompts, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prompts == nil {
		prompts = NewPrompts("", "")
	}
	return &Classifier{gen: gen, prompts: prompts, logger: logger}
}

// Classify returns the intent of question. Any generation failure yields IntentPolicy so
// that a genuine question still reaches retrieval.
func (c *Classifier) Classify(ctx context.Context, question string) models.Intent {
	prompt, err := c.prompts.Classification(question)
	if err != nil {
		c.logger.Warn("intent prompt failed, defaulting to policy", zap.Error(err))
		return models.IntentPolicy
	}
	label, err := c.gen.Generate(ctx, prompt)
	if err != nil {
		c.logger.Warn("intent classification failed, defaulting to policy", zap.Error(err))
		return models.IntentPolicy
	}
	intent := ParseIntent(label)
	c.logger.Debug("classified question", zap.String("intent", string(intent)), zap.String("label", label))
	return intent
}

// ParseIntent maps a free-form label to an intent. Chitchat is checked before off-topic and
// anything unrecognised is policy.
func ParseIntent(label string) models.Intent {
	l := strings.ToLower(strings.TrimSpace(label))
	switch {
	case strings.Contains(l, "chitchat"):
		return models.IntentChitchat
	case strings.Contains(l, "off_topic"), strings.Contains(l, "off-topic"), strings.Contains(l, "off topic"):
		return models.IntentOffTopic
	default:
		return models.IntentPolicy
	}
}
