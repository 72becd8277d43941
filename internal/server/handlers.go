package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/failover"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
)

// AskRequest is the body of the ask endpoints.
type AskRequest struct {
	Question string `json:"question"`
}

// IngestResponse is returned by a successful upload.
type IngestResponse struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
	Status string `json:"status"`
}

// RemoveResponse is returned by source removal.
type RemoveResponse struct {
	Source  string `json:"source"`
	Removed int    `json:"removed"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	question, ok := s.decodeQuestion(w, r)
	if !ok {
		return
	}
	s.logger.Debug("ask request", zap.String("question", question))
	res, err := s.deps.Engine.Answer(r.Context(), question)
	if err != nil {
		s.respondFailure(w, "ask failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) decodeQuestion(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	return req.Question, true
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := int64(s.deps.Config.Server.MaxUploadMB) << 20
	if r.ContentLength > limit {
		s.respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d MB", s.deps.Config.Server.MaxUploadMB))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d MB", s.deps.Config.Server.MaxUploadMB))
			return
		}
		s.respondError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	name := fileid.SourceName(header.Filename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		s.respondError(w, http.StatusBadRequest, "invalid file name")
		return
	}
	if !extract.Supported(filepath.Ext(name)) {
		s.respondError(w, http.StatusUnsupportedMediaType, fmt.Sprintf("unsupported file type %q", filepath.Ext(name)))
		return
	}
	path, err := s.saveUpload(file, name)
	if err != nil {
		s.logger.Error("saving upload failed", zap.String("source", name), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "could not store upload")
		return
	}
	s.logger.Debug("upload stored", zap.String("source", name), zap.String("path", path))
	n, err := s.deps.Indexer.IngestFile(r.Context(), path)
	if err != nil {
		s.respondFailure(w, "ingestion failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, IngestResponse{Source: name, Chunks: n, Status: "indexed"})
}

// saveUpload writes the upload into the uploads directory through a temporary file so that
// a watcher never sees a partial document.
func (s *Server) saveUpload(src io.Reader, name string) (string, error) {
	dir := s.deps.Config.Storage.UploadsDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", err
	}
	return dst, nil
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.deps.Indexer.Sources(r.Context())
	if err != nil {
		s.respondFailure(w, "list sources failed", err)
		return
	}
	if sources == nil {
		sources = []models.SourceSummary{}
	}
	s.respondJSON(w, http.StatusOK, sources)
}

func (s *Server) handleRemoveSource(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.logger.Debug("remove source request", zap.String("source", name))
	n, err := s.deps.Indexer.RemoveSource(r.Context(), name)
	if err != nil {
		s.respondFailure(w, "remove source failed", err)
		return
	}
	if n == 0 {
		s.respondError(w, http.StatusNotFound, "source not found")
		return
	}
	if dir := s.deps.Config.Storage.UploadsDir; dir != "" {
		// A stale upload would be re-ingested by the watcher on the next restart.
		if err := os.Remove(filepath.Join(dir, fileid.SourceName(name))); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("removing uploaded file failed", zap.String("source", name), zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusOK, RemoveResponse{Source: name, Removed: n})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, BuildProviders(r.Context(), s.deps))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := BuildStatus(r.Context(), s.deps)
	if err != nil {
		s.respondFailure(w, "status failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps domain errors to HTTP status codes and client-facing messages.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, rag.ErrEmptyQuestion):
		return http.StatusBadRequest, "question is required"
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, err.Error()
	case errors.Is(err, failover.ErrExhausted), errors.Is(err, failover.ErrNoProviders):
		return http.StatusServiceUnavailable, "no provider reachable"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func (s *Server) respondFailure(w http.ResponseWriter, msg string, err error) {
	code, message := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, code, message)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
