package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/server"
)

// apiClient talks to a running kotae server. Using it while a server is up keeps a single
// process owning the index files.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{baseURL: strings.TrimRight(baseURL, "/"), http: http.DefaultClient}
}

// apiError is the error body returned by the server.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *apiClient) do(ctx context.Context, method, path, contentType string, body io.Reader, wantStatus int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(resp.Body)
	if json.Unmarshal(data, &body) != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}
	return &apiError{Status: resp.StatusCode, Message: body.Error}
}

func (c *apiClient) Answer(ctx context.Context, question string) (*models.AnswerResult, error) {
	body, _ := json.Marshal(server.AskRequest{Question: question})
	var res models.AnswerResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/ask", "application/json", bytes.NewReader(body), http.StatusOK, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AnswerStream reads the server-sent events of the streaming ask endpoint, calling onToken
// for each fragment as it arrives. The returned result holds the full answer text.
func (c *apiClient) AnswerStream(ctx context.Context, question string, onToken func(string)) (*models.AnswerResult, error) {
	body, _ := json.Marshal(server.AskRequest{Question: question})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/ask/stream", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}
	return readAnswerEvents(resp.Body, onToken)
}

// readAnswerEvents consumes citations, token, done and error events.
func readAnswerEvents(r io.Reader, onToken func(string)) (*models.AnswerResult, error) {
	res := &models.AnswerResult{Citations: []models.Citation{}}
	var text strings.Builder
	var event string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := []byte(strings.TrimPrefix(line, "data: "))
			switch event {
			case server.EventCitations:
				if err := json.Unmarshal(data, &res.Citations); err != nil {
					return nil, fmt.Errorf("decode citations: %w", err)
				}
			case server.EventToken:
				var tok server.TokenEvent
				if err := json.Unmarshal(data, &tok); err != nil {
					return nil, fmt.Errorf("decode token: %w", err)
				}
				text.WriteString(tok.Text)
				if onToken != nil {
					onToken(tok.Text)
				}
			case server.EventDone:
				var done server.DoneEvent
				if err := json.Unmarshal(data, &done); err != nil {
					return nil, fmt.Errorf("decode done: %w", err)
				}
				res.Grounded = done.Grounded
				res.Intent = done.Intent
				res.Answer = rag.NormalizeAnswer(text.String())
				return res, nil
			case server.EventError:
				var ev server.ErrorEvent
				_ = json.Unmarshal(data, &ev)
				return nil, errors.New(ev.Error)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("stream ended without a done event")
}

// Upload sends one file to the documents endpoint.
func (c *apiClient) Upload(ctx context.Context, path string) (*server.IngestResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	var res server.IngestResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/documents", mw.FormDataContentType(), &buf, http.StatusCreated, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *apiClient) RemoveSource(ctx context.Context, source string) (int, error) {
	var res server.RemoveResponse
	if err := c.do(ctx, http.MethodDelete, "/api/v1/sources/"+url.PathEscape(source), "", nil, http.StatusOK, &res); err != nil {
		return 0, err
	}
	return res.Removed, nil
}

func (c *apiClient) Sources(ctx context.Context) ([]models.SourceSummary, error) {
	var out []models.SourceSummary
	if err := c.do(ctx, http.MethodGet, "/api/v1/sources", "", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) Providers(ctx context.Context) (*models.ProvidersReport, error) {
	var out models.ProvidersReport
	if err := c.do(ctx, http.MethodGet, "/api/v1/providers", "", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Status(ctx context.Context) (*models.StatusReport, error) {
	var out models.StatusReport
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", "", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
