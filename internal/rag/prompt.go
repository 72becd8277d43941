// Package rag answers questions from the vector index: it classifies intent, gates
// retrieved passages by score, renders prompts and composes the final answer.
package rag

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/hyperjump/kotae/internal/models"
)

const (
	// DefaultTopic is the subject the assistant answers questions about.
	DefaultTopic = "HR policy"
	// DefaultTopicExamples lists what counts as on-topic in the classification prompt.
	DefaultTopicExamples = "leave, PTO, benefits, conduct, onboarding, payroll, attendance, dress code, " +
		"harassment, travel and expenses, parental, bereavement and sick leave"
)

var templates = template.Must(template.New("prompts").Parse(`
{{- define "policy" -}}
You are an assistant for {{.Topic}} questions. Answer ONLY using the provided sources.
Keep it concise (2-4 short sentences), warm and human, and cite every source you use.
When summarizing rules, list the specific types and rules found and leave out unrelated material.
If the answer is not contained in the sources, reply exactly with '{{.NoInformation}}'
{{range .Sources}}
[Source {{.N}}]
{{.Text}}
{{end}}
User question: {{.Question}}
Answer with citations like [Source X] and do not cite anything else.
{{- end}}

{{- define "chitchat" -}}
You are an assistant for {{.Topic}} questions. The user is making small talk.
Reply in a friendly, human way in one or two sentences and invite them to ask about {{.Topic}}.
Do not make anything up and do not add citations.

User message: {{.Question}}
{{- end}}

{{- define "off_topic" -}}
You are an assistant focused solely on {{.Topic}}. The user asked something unrelated.
Write a polite one or two sentence reply reminding them that you can only help with {{.Topic}} ({{.TopicExamples}}) and invite them to ask a related question.
Do not answer the user's question and do not use citations.

User message: {{.Question}}
{{- end}}

{{- define "classify" -}}
Classify the user message into one of: policy, off_topic, chitchat.
policy: {{.Topic}} questions and procedures ({{.TopicExamples}}).
chitchat: greetings and small talk (hi, how are you, thanks) without {{.Topic}} content.
off_topic: anything else not related to {{.Topic}}.

Message: {{.Question}}

Respond with only one label: policy, off_topic, or chitchat.
{{- end}}
`))

// Prompts renders the prompt templates for one assistant topic.
type Prompts struct {
	topic    string
	examples string
}

// NewPrompts returns prompts for topic. Empty arguments fall back to the defaults.
func NewPrompts(topic, examples string) *Prompts {
	if topic == "" {
		topic = DefaultTopic
	}
	if examples == "" {
		examples = DefaultTopicExamples
	}
	return &Prompts{topic: topic, examples: examples}
}

// Topic returns the configured topic.
func (p *Prompts) Topic() string { return p.topic }

type promptSource struct {
	N    int
	Text string
}

type promptData struct {
	Topic         string
	TopicExamples string
	NoInformation string
	Question      string
	Sources       []promptSource
}

// Policy renders the grounded prompt with one numbered source block per hit, in order.
func (p *Prompts) Policy(question string, hits []models.SearchHit) (string, error) {
	sources := make([]promptSource, len(hits))
	for i, h := range hits {
		sources[i] = promptSource{N: i + 1, Text: h.Chunk.Text}
	}
	return p.render("policy", question, sources)
}

// Conversational renders the chitchat or off-topic prompt.
func (p *Prompts) Conversational(question string, intent models.Intent) (string, error) {
	switch intent {
	case models.IntentChitchat, models.IntentOffTopic:
		return p.render(string(intent), question, nil)
	default:
		return "", fmt.Errorf("no conversational prompt for intent %q", intent)
	}
}

// Classification renders the intent classification prompt.
func (p *Prompts) Classification(question string) (string, error) {
	return p.render("classify", question, nil)
}

func (p *Prompts) render(name, question string, sources []promptSource) (string, error) {
	var buf bytes.Buffer
	err := templates.ExecuteTemplate(&buf, name, promptData{
		Topic:         p.topic,
		TopicExamples: p.examples,
		NoInformation: models.NoInformationAnswer,
		Question:      question,
		Sources:       sources,
	})
	if err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return buf.String(), nil
}
