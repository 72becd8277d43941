package vector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Embedder turns texts into vectors. *embedding.Router satisfies it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// LoadState describes what Open found on disk.
type LoadState string

const (
	// LoadCold means no persisted artifacts existed.
	LoadCold LoadState = "cold"
	// LoadWarm means both artifacts were read and agreed.
	LoadWarm LoadState = "warm"
	// LoadDiscarded means artifacts existed but were incomplete or disagreed, and were ignored.
	LoadDiscarded LoadState = "discarded"
)

// Store keeps normalised chunk vectors and chunk metadata in lock-step: position i of the
// index always describes chunks[i]. Every mutation is persisted before it returns.
type Store struct {
	mu         sync.RWMutex
	embedder   Embedder
	indexType  string
	index      Index
	chunks     []models.Chunk
	vectorPath string
	metaPath   string
	state      LoadState
	logger     *zap.Logger
	metrics    *metrics.Metrics
	writeMeta  func(path string, chunks []models.Chunk) error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics records index size and chunk churn.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithIndexType selects the vector index backend ("memory" or "faiss"). An unavailable
// backend falls back to the in-memory index with a warning.
func WithIndexType(t string) Option {
	return func(s *Store) { s.indexType = t }
}

// Open returns a store persisted at vectorPath (plus its metadata sidecar), loading any
// existing artifacts. An empty vectorPath keeps the store in memory only. Missing, partial,
// unreadable or disagreeing artifacts never fail Open: the store starts empty.
func Open(vectorPath string, embedder Embedder, opts ...Option) *Store {
	s := &Store{
		embedder:   embedder,
		vectorPath: vectorPath,
		state:      LoadCold,
		logger:     zap.NewNop(),
		writeMeta:  writeMetaFile,
	}
	if vectorPath != "" {
		s.metaPath = MetaPath(vectorPath)
	}
	for _, opt := range opts {
		opt(s)
	}
	idx, err := NewIndex(s.indexType)
	if err != nil {
		s.logger.Warn("vector index backend unavailable, using memory index",
			zap.String("index_type", s.indexType), zap.Error(err))
		s.indexType = string(IndexTypeMemory)
		idx = NewFlatIndex()
	}
	s.index = idx
	s.load()
	s.metrics.SetIndexSize(len(s.chunks))
	return s
}

func (s *Store) newIndex() Index {
	idx, err := NewIndex(s.indexType)
	if err != nil {
		return NewFlatIndex()
	}
	return idx
}

func (s *Store) load() {
	if s.vectorPath == "" {
		return
	}
	vecExists := fileExists(s.vectorPath)
	metaExists := fileExists(s.metaPath)
	if !vecExists && !metaExists {
		s.logger.Info("no persisted index, starting empty", zap.String("path", s.vectorPath))
		return
	}
	discard := func(reason string, err error) {
		s.state = LoadDiscarded
		s.logger.Warn("persisted index is inconsistent, starting empty",
			zap.String("reason", reason),
			zap.String("vectors", s.vectorPath),
			zap.String("metadata", s.metaPath),
			zap.Error(err))
	}
	if !vecExists || !metaExists {
		discard("one of the paired artifacts is missing", nil)
		return
	}

	idx := s.newIndex()
	if err := idx.Load(s.vectorPath); err != nil {
		_ = idx.Close()
		discard("vector file unreadable", err)
		return
	}
	chunks, err := readMetaFile(s.metaPath)
	if err != nil {
		_ = idx.Close()
		discard("metadata file unreadable", err)
		return
	}
	if idx.Len() != len(chunks) {
		_ = idx.Close()
		discard(fmt.Sprintf("record counts disagree: %d vectors, %d metadata records", idx.Len(), len(chunks)), nil)
		return
	}
	_ = s.index.Close()
	s.index, s.chunks, s.state = idx, chunks, LoadWarm
	s.logger.Info("loaded index", zap.Int("chunks", len(chunks)), zap.Int("dimensions", idx.Dim()))
}

// Add embeds texts and appends their vectors and chunks, then persists both artifacts.
// texts[i] is the text embedded for chunks[i]. If persisting fails the append is undone in
// memory and on disk.
func (s *Store) Add(ctx context.Context, texts []string, chunks []models.Chunk) (int, error) {
	if len(texts) != len(chunks) {
		return 0, fmt.Errorf("texts and chunks length mismatch: %d vs %d", len(texts), len(chunks))
	}
	if len(texts) == 0 {
		return 0, nil
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(texts) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		normalized[i] = utils.Normalize(v)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prevDim, prevRows, prevChunks := s.index.Dim(), s.index.Rows(), s.chunks
	if err := s.index.Add(normalized); err != nil {
		return 0, err
	}
	s.chunks = append(s.chunks, chunks...)
	if err := s.persistLocked(); err != nil {
		return 0, s.rollbackLocked(prevDim, prevRows, prevChunks, err)
	}
	s.metrics.ChunksIngested(len(chunks))
	s.metrics.SetIndexSize(len(s.chunks))
	return len(chunks), nil
}

// Search returns up to topK chunks most similar to query, best first. Hits whose position
// falls outside the metadata or whose score is not positive are dropped. An empty store
// returns no hits without calling the embedder.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]models.SearchHit, error) {
	if s.Len() == 0 || topK <= 0 {
		return nil, nil
	}
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}
	q := utils.Normalize(vectors[0])

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := s.index.Search(q, topK)
	if err != nil {
		return nil, err
	}
	hits := make([]models.SearchHit, 0, len(matches))
	for _, m := range matches {
		if m.Position < 0 || m.Position >= len(s.chunks) {
			continue
		}
		if m.Score <= 0 {
			continue
		}
		hits = append(hits, models.SearchHit{Chunk: s.chunks[m.Position], Score: m.Score})
	}
	return hits, nil
}

// RemoveSource drops every chunk of the named source and rebuilds the index from the
// retained vectors in their original order. It returns the number of chunks removed.
func (s *Store) RemoveSource(source string) (int, error) {
	return s.RemoveWhere(func(c models.Chunk) bool { return c.Source == source })
}

// RemoveWhere drops every chunk for which remove returns true, rebuilding the index from
// the retained vectors without re-embedding. Nothing is persisted when nothing matches.
func (s *Store) RemoveWhere(remove func(models.Chunk) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make([]bool, len(s.chunks))
	removed := 0
	for i, c := range s.chunks {
		keep[i] = !remove(c)
		if !keep[i] {
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}

	prevDim, prevRows, prevChunks := s.index.Dim(), s.index.Rows(), s.chunks
	if err := s.index.Keep(func(pos int) bool { return keep[pos] }); err != nil {
		return 0, s.rollbackLocked(prevDim, prevRows, prevChunks, err)
	}
	retained := make([]models.Chunk, 0, len(s.chunks)-removed)
	for i, c := range s.chunks {
		if keep[i] {
			retained = append(retained, c)
		}
	}
	s.chunks = retained

	if err := s.persistLocked(); err != nil {
		return 0, s.rollbackLocked(prevDim, prevRows, prevChunks, err)
	}
	s.logger.Debug("removed chunks from index", zap.Int("chunks", removed), zap.Int("remaining", len(s.chunks)))
	s.metrics.ChunksRemoved(removed)
	s.metrics.SetIndexSize(len(s.chunks))
	return removed, nil
}

// persistLocked writes the vector blob, then the metadata sidecar. A crash between the two
// renames leaves artifacts whose counts disagree, which load treats as a cold start. An
// index without a dimension has nothing to describe, so its artifacts are removed.
func (s *Store) persistLocked() error {
	if s.vectorPath == "" {
		return nil
	}
	if s.index.Dim() == 0 {
		for _, p := range []string{s.vectorPath, s.metaPath} {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("remove %s: %w", p, err)
			}
		}
		return nil
	}
	if err := s.index.Save(s.vectorPath); err != nil {
		return fmt.Errorf("persist vectors: %w", err)
	}
	if err := s.writeMeta(s.metaPath, s.chunks); err != nil {
		return fmt.Errorf("persist metadata: %w", err)
	}
	return nil
}

// rollbackLocked restores the index and chunks after a failed mutation and rewrites both
// artifacts from the restored state, since the vector blob may already hold the rejected
// rows. A failed rewrite is logged; cause is always returned.
func (s *Store) rollbackLocked(dim int, rows [][]float32, chunks []models.Chunk, cause error) error {
	s.chunks = chunks
	if err := s.index.Reset(dim, rows); err != nil {
		s.logger.Error("restoring index after failed write", zap.NamedError("cause", cause), zap.Error(err))
		return cause
	}
	if err := s.persistLocked(); err != nil {
		s.logger.Warn("rewriting persisted index after failed write",
			zap.NamedError("cause", cause), zap.Error(err))
	}
	return cause
}

// Close releases the index backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// IndexType reports the backend in use.
func (s *Store) IndexType() IndexType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Type()
}

// Len returns the number of indexed chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Dimension returns the index dimension, or 0 before the first Add.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Dim()
}

// LoadState reports what Open found on disk.
func (s *Store) LoadState() LoadState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Chunks returns a copy of all chunk records in index order.
func (s *Store) Chunks() []models.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// CountSource returns how many chunks belong to source.
func (s *Store) CountSource(source string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.chunks {
		if c.Source == source {
			n++
		}
	}
	return n
}

// Sources summarises the indexed sources in order of first appearance.
func (s *Store) Sources() []models.SourceSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SourceSummary
	pos := make(map[string]int)
	for _, c := range s.chunks {
		i, ok := pos[c.Source]
		if !ok {
			i = len(out)
			pos[c.Source] = i
			out = append(out, models.SourceSummary{Source: c.Source, DocID: c.DocID})
		}
		out[i].Chunks++
	}
	return out
}

// Paths returns the vector blob and metadata sidecar paths.
func (s *Store) Paths() (vectors, metadata string) {
	return s.vectorPath, s.metaPath
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}
