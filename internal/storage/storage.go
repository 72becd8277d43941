// Package storage keeps the registry of ingested source documents.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrNotFound is returned when a source is not registered.
var ErrNotFound = errors.New("source not found")

// Storage defines source registry operations. Chunk text and vectors live in the vector
// store; the registry records which document each source name currently maps to.
type Storage interface {
	UpsertSource(ctx context.Context, src *models.SourceSummary) error
	GetSource(ctx context.Context, source string) (*models.SourceSummary, error)
	DeleteSource(ctx context.Context, source string) error
	ListSources(ctx context.Context) ([]*models.SourceSummary, error)
	CountSources(ctx context.Context) (int64, error)

	Close() error
}
