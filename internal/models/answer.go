package models

// Intent is the coarse class of a user question.
type Intent string

const (
	// IntentPolicy questions are answered from retrieved passages only.
	IntentPolicy Intent = "policy"
	// IntentChitchat covers greetings and small talk.
	IntentChitchat Intent = "chitchat"
	// IntentOffTopic covers questions outside the supported topic.
	IntentOffTopic Intent = "off_topic"
)

// NoInformationAnswer is returned verbatim when no retrieved passage supports an answer.
const NoInformationAnswer = "No information found."

// EmptyIndexAnswer is returned when nothing has been ingested yet.
const EmptyIndexAnswer = "No information found. Please ingest documents first."

// Citation is the user-facing reference to a retained search hit.
type Citation struct {
	Source  string  `json:"source"`
	Page    int     `json:"page"`
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
	Text    string  `json:"text"`
}

// AnswerResult is the complete response to a question.
type AnswerResult struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	Grounded  bool       `json:"grounded"`
	Intent    Intent     `json:"intent"`
}

// CitationFromHit builds a citation from a search hit.
func CitationFromHit(h SearchHit) Citation {
	return Citation{
		Source:  h.Chunk.Source,
		Page:    h.Chunk.Page,
		ChunkID: h.Chunk.ChunkID,
		Score:   h.Score,
		Text:    h.Chunk.Text,
	}
}
