package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// Server-sent event names of the streaming ask endpoint, in the order they are sent.
const (
	EventCitations = "citations"
	EventToken     = "token"
	EventDone      = "done"
	EventError     = "error"
)

// TokenEvent carries one generated fragment.
type TokenEvent struct {
	Text string `json:"text"`
}

// DoneEvent closes a successful stream.
type DoneEvent struct {
	Grounded bool          `json:"grounded"`
	Intent   models.Intent `json:"intent"`
	Provider string        `json:"provider,omitempty"`
}

// ErrorEvent closes a stream that broke after its first token.
type ErrorEvent struct {
	Error string `json:"error"`
}

// handleAskStream streams an answer as server-sent events. The first fragment is pulled
// before any header is written, so a request whose providers are all unreachable still
// gets a plain JSON error with the right status code.
func (s *Server) handleAskStream(w http.ResponseWriter, r *http.Request) {
	question, ok := s.decodeQuestion(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	sa, err := s.deps.Engine.AnswerStream(r.Context(), question)
	if err != nil {
		s.respondFailure(w, "ask stream failed", err)
		return
	}
	defer sa.Tokens.Close()

	first, err := sa.Tokens.Next()
	if err != nil && !errors.Is(err, io.EOF) {
		s.respondFailure(w, "ask stream failed", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	citations := sa.Citations
	if citations == nil {
		citations = []models.Citation{}
	}
	writeEvent(w, EventCitations, citations)
	flusher.Flush()

	for fragment := first; err == nil; fragment, err = sa.Tokens.Next() {
		writeEvent(w, EventToken, TokenEvent{Text: fragment})
		flusher.Flush()
	}
	if !errors.Is(err, io.EOF) {
		s.logger.Warn("answer stream broke", zap.String("provider", sa.Tokens.Provider()), zap.Error(err))
		writeEvent(w, EventError, ErrorEvent{Error: err.Error()})
		flusher.Flush()
		return
	}
	writeEvent(w, EventDone, DoneEvent{Grounded: sa.Grounded, Intent: sa.Intent, Provider: sa.Tokens.Provider()})
	flusher.Flush()
}

func writeEvent(w io.Writer, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
