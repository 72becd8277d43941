package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sources (
		source TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL,
		digest TEXT NOT NULL DEFAULT '',
		chunk_count INTEGER NOT NULL DEFAULT 0,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		ingested_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_sources_ingested_at ON sources(ingested_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_sources_doc_id ON sources(doc_id);
	`
	_, err := db.Exec(schema)
	return err
}

// UpsertSource inserts or replaces the registry row for src.Source. IngestedAt is set to
// now when zero.
func (s *SQLiteStorage) UpsertSource(ctx context.Context, src *models.SourceSummary) error {
	if src.IngestedAt.IsZero() {
		src.IngestedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (source, doc_id, digest, chunk_count, size_bytes, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source) DO UPDATE SET
		   doc_id = excluded.doc_id,
		   digest = excluded.digest,
		   chunk_count = excluded.chunk_count,
		   size_bytes = excluded.size_bytes,
		   ingested_at = excluded.ingested_at`,
		src.Source, src.DocID, src.Digest, src.Chunks, src.SizeBytes, src.IngestedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert source %q: %w", src.Source, err)
	}
	return nil
}

// GetSource returns the registry row for source, or ErrNotFound.
func (s *SQLiteStorage) GetSource(ctx context.Context, source string) (*models.SourceSummary, error) {
	var src models.SourceSummary
	err := s.db.QueryRowContext(ctx,
		`SELECT source, doc_id, digest, chunk_count, size_bytes, ingested_at
		 FROM sources WHERE source = ?`, source,
	).Scan(&src.Source, &src.DocID, &src.Digest, &src.Chunks, &src.SizeBytes, &src.IngestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, source)
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// DeleteSource removes the registry row. Deleting an unknown source is not an error.
func (s *SQLiteStorage) DeleteSource(ctx context.Context, source string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE source = ?`, source)
	return err
}

// ListSources returns all registered sources, most recently ingested first.
func (s *SQLiteStorage) ListSources(ctx context.Context) ([]*models.SourceSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, doc_id, digest, chunk_count, size_bytes, ingested_at
		 FROM sources ORDER BY ingested_at DESC, source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.SourceSummary
	for rows.Next() {
		var src models.SourceSummary
		if err := rows.Scan(&src.Source, &src.DocID, &src.Digest, &src.Chunks, &src.SizeBytes, &src.IngestedAt); err != nil {
			return nil, err
		}
		out = append(out, &src)
	}
	return out, rows.Err()
}

// CountSources returns the number of registered sources.
func (s *SQLiteStorage) CountSources(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
