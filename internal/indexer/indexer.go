package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// DefaultBatchSize is the number of chunks embedded per provider request.
const DefaultBatchSize = 64

// Indexer ingests documents into the vector store and keeps the source registry in step.
// Ingestion and removal are serialized so that concurrent callers replacing the same
// source cannot drop each other's chunks.
type Indexer struct {
	mu        sync.Mutex
	store     *vector.Store
	registry  storage.Storage
	chunker   *Chunker
	extractor *extract.Extractor
	batchSize int
	logger    *zap.Logger // optional; when set, logs ingestion events
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for ingestion events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithBatchSize sets how many chunks are embedded per request.
func WithBatchSize(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.batchSize = n
		}
	}
}

// NewIndexer creates an indexer. registry may be nil, in which case unchanged files are
// always re-ingested and sources are listed from the store alone.
func NewIndexer(store *vector.Store, registry storage.Storage, chunker *Chunker, extractor *extract.Extractor, opts ...IndexerOption) *Indexer {
	if chunker == nil {
		chunker = NewChunker(DefaultMaxWords, DefaultOverlap)
	}
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	idx := &Indexer{
		store:     store,
		registry:  registry,
		chunker:   chunker,
		extractor: extractor,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Ingest extracts, chunks, embeds and indexes one document and returns its chunk count.
// The source is the base name of filename. Ingesting a source again replaces its previous
// chunks once the new ones are indexed; identical content is skipped.
func (idx *Indexer) Ingest(ctx context.Context, content []byte, filename string) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	source := fileid.SourceName(filename)
	ext := strings.ToLower(filepath.Ext(source))
	if !extract.Supported(ext) {
		return 0, fmt.Errorf("%w: %q", extract.ErrUnsupportedFormat, ext)
	}
	digest := fileid.Digest(content)
	if n, ok := idx.unchanged(ctx, source, digest); ok {
		idx.debug("skipping unchanged source", zap.String("source", source), zap.Int("chunks", n))
		return n, nil
	}

	blocks, err := idx.extractor.ExtractBytes(content, ext)
	if err != nil {
		return 0, fmt.Errorf("extract %s: %w", source, err)
	}
	docID := uuid.NewString()
	chunks := idx.buildChunks(docID, source, blocks)

	if len(chunks) == 0 {
		if idx.logger != nil {
			idx.logger.Warn("no text extracted", zap.String("source", source))
		}
		if _, err := idx.removeSource(ctx, source); err != nil {
			return 0, err
		}
		return 0, nil
	}

	for start := 0; start < len(chunks); start += idx.batchSize {
		batch := chunks[start:min(start+idx.batchSize, len(chunks))]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		if _, err := idx.store.Add(ctx, texts, batch); err != nil {
			if _, rbErr := idx.store.RemoveWhere(func(c models.Chunk) bool { return c.DocID == docID }); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("roll back partial ingest: %w", rbErr))
			}
			return 0, fmt.Errorf("index %s: %w", source, err)
		}
	}

	replaced, err := idx.store.RemoveWhere(func(c models.Chunk) bool {
		return c.Source == source && c.DocID != docID
	})
	if err != nil {
		return 0, fmt.Errorf("replace previous %s: %w", source, err)
	}
	if idx.registry != nil {
		if err := idx.registry.UpsertSource(ctx, &models.SourceSummary{
			Source:    source,
			DocID:     docID,
			Chunks:    len(chunks),
			Digest:    digest,
			SizeBytes: int64(len(content)),
		}); err != nil {
			return 0, err
		}
	}
	if idx.logger != nil {
		idx.logger.Info("ingested document",
			zap.String("source", source),
			zap.String("doc_id", docID),
			zap.Int("blocks", len(blocks)),
			zap.Int("chunks", len(chunks)),
			zap.Int("replaced", replaced))
	}
	return len(chunks), nil
}

// buildChunks windows every block. ChunkID is "<page>-<n>" where n counts chunks on the
// page from 1, so ids stay unique when a page holds several paragraphs.
func (idx *Indexer) buildChunks(docID, source string, blocks []extract.Block) []models.Chunk {
	var chunks []models.Chunk
	perPage := make(map[int]int)
	for _, b := range blocks {
		for _, w := range idx.chunker.Split(b.Text) {
			perPage[b.Page]++
			chunks = append(chunks, models.Chunk{
				DocID:   docID,
				Source:  source,
				Page:    b.Page,
				ChunkID: fmt.Sprintf("%d-%d", b.Page, perPage[b.Page]),
				Text:    w.Text,
			})
		}
	}
	return chunks
}

func (idx *Indexer) unchanged(ctx context.Context, source, digest string) (int, bool) {
	if idx.registry == nil {
		return 0, false
	}
	prev, err := idx.registry.GetSource(ctx, source)
	if err != nil || prev.Digest != digest || prev.Chunks == 0 {
		return 0, false
	}
	// The vector store may have been cold-started; only skip when it still holds the chunks.
	if idx.store.CountSource(source) != prev.Chunks {
		return 0, false
	}
	return prev.Chunks, true
}

// IngestFile reads and ingests the file at path. Unsupported extensions fail before the
// file is read.
func (idx *Indexer) IngestFile(ctx context.Context, path string) (int, error) {
	idx.debug("ingesting file", zap.String("path", path))
	if !extract.Supported(filepath.Ext(path)) {
		return 0, fmt.Errorf("%w: %q", extract.ErrUnsupportedFormat, filepath.Ext(path))
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("not a regular file: %s", path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read file: %w", err)
	}
	return idx.Ingest(ctx, content, path)
}

// IngestDirectory walks dir recursively and ingests every supported regular file. A
// failing file does not stop the walk; all failures are joined into the returned error.
func (idx *Indexer) IngestDirectory(ctx context.Context, dir string) (files, chunks int, err error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, 0, fmt.Errorf("not a directory: %s", dir)
	}
	var errs []error
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !extract.Supported(filepath.Ext(path)) {
			return nil
		}
		n, err := idx.IngestFile(ctx, path)
		if err != nil {
			if idx.logger != nil {
				idx.logger.Warn("failed to ingest file", zap.String("path", path), zap.Error(err))
			}
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			return nil
		}
		files++
		chunks += n
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}
	return files, chunks, errors.Join(errs...)
}

// RemoveSource deletes every chunk of source from the store and its registry row.
func (idx *Indexer) RemoveSource(ctx context.Context, source string) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.removeSource(ctx, source)
}

func (idx *Indexer) removeSource(ctx context.Context, source string) (int, error) {
	removed, err := idx.store.RemoveSource(source)
	if err != nil {
		return 0, fmt.Errorf("remove %s: %w", source, err)
	}
	if idx.registry != nil {
		if err := idx.registry.DeleteSource(ctx, source); err != nil {
			return removed, fmt.Errorf("unregister %s: %w", source, err)
		}
	}
	idx.debug("removed source", zap.String("source", source), zap.Int("chunks", removed))
	return removed, nil
}

// Sources lists indexed sources. Chunk counts come from the store; registry rows add
// digest, size and ingestion time.
func (idx *Indexer) Sources(ctx context.Context) ([]models.SourceSummary, error) {
	sources := idx.store.Sources()
	if idx.registry == nil {
		return sources, nil
	}
	for i := range sources {
		reg, err := idx.registry.GetSource(ctx, sources[i].Source)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sources[i].Digest = reg.Digest
		sources[i].SizeBytes = reg.SizeBytes
		sources[i].IngestedAt = reg.IngestedAt
	}
	return sources, nil
}

func (idx *Indexer) debug(msg string, fields ...zap.Field) {
	if idx.logger != nil {
		idx.logger.Debug(msg, fields...)
	}
}
