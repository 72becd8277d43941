package vector

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// mapEmbedder returns pinned vectors per text.
type mapEmbedder struct {
	vectors map[string][]float32
	calls   int
	err     error
}

func (m *mapEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, ok := m.vectors[text]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", text)
		}
		out[i] = v
	}
	return out, nil
}

func testEmbedder() *mapEmbedder {
	return &mapEmbedder{vectors: map[string][]float32{
		"leave":    {3, 0, 0},
		"sick":     {2, 2, 0},
		"pay":      {0, 0, 5},
		"opposite": {-1, 0, 0},
		"q-leave":  {1, 0, 0},
		"q-pay":    {0, 0, 1},
	}}
}

func chunk(source, id, text string) models.Chunk {
	return models.Chunk{DocID: "doc-" + source, Source: source, Page: 1, ChunkID: id, Text: text}
}

func addAll(t *testing.T, s *Store, chunks ...models.Chunk) {
	t.Helper()
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	n, err := s.Add(context.Background(), texts, chunks)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if n != len(chunks) {
		t.Fatalf("Add returned %d, want %d", n, len(chunks))
	}
}

func TestStore_roundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store", "index.vec")
	emb := testEmbedder()
	s := Open(path, emb)
	if s.LoadState() != LoadCold {
		t.Errorf("state = %s, want cold", s.LoadState())
	}
	addAll(t, s, chunk("a.pdf", "1-1", "leave"), chunk("a.pdf", "1-2", "sick"), chunk("b.pdf", "1-1", "pay"))

	before, err := s.Search(context.Background(), "q-leave", 3)
	if err != nil {
		t.Fatal(err)
	}

	reopened := Open(path, emb)
	if reopened.LoadState() != LoadWarm {
		t.Fatalf("state = %s, want warm", reopened.LoadState())
	}
	if reopened.Len() != 3 || reopened.Dimension() != 3 {
		t.Fatalf("Len=%d Dim=%d", reopened.Len(), reopened.Dimension())
	}
	after, err := reopened.Search(context.Background(), "q-leave", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(before) != len(after) {
		t.Fatalf("hits before=%d after=%d", len(before), len(after))
	}
	for i := range before {
		if before[i].Chunk != after[i].Chunk || math.Abs(before[i].Score-after[i].Score) > 1e-9 {
			t.Errorf("hit %d differs: %+v vs %+v", i, before[i], after[i])
		}
	}
	if _, err := os.Stat(MetaPath(path)); err != nil {
		t.Errorf("metadata sidecar missing: %v", err)
	}
}

func TestStore_vectorsAreNormalized(t *testing.T) {
	s := Open("", testEmbedder())
	addAll(t, s, chunk("a.pdf", "1-1", "leave"), chunk("a.pdf", "1-2", "sick"), chunk("b.pdf", "1-1", "pay"))
	for i := 0; i < s.index.Len(); i++ {
		if n := utils.L2Norm(s.index.Rows()[i]); math.Abs(n-1) > 1e-6 {
			t.Errorf("row %d norm = %v", i, n)
		}
	}
}

func TestStore_searchOrderingAndBounds(t *testing.T) {
	s := Open("", testEmbedder())
	addAll(t, s,
		chunk("a.pdf", "1-1", "leave"),
		chunk("a.pdf", "1-2", "sick"),
		chunk("b.pdf", "1-1", "pay"),
		chunk("c.pdf", "1-1", "opposite"),
	)

	hits, err := s.Search(context.Background(), "q-leave", 10)
	if err != nil {
		t.Fatal(err)
	}
	// "pay" scores 0 and "opposite" scores -1: both dropped.
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %+v", hits)
	}
	if hits[0].Chunk.Text != "leave" || hits[1].Chunk.Text != "sick" {
		t.Errorf("unexpected order: %+v", hits)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Error("scores must be non-increasing")
		}
	}
	for _, h := range hits {
		if h.Score <= 0 || h.Score > 1+1e-6 {
			t.Errorf("score out of range: %v", h.Score)
		}
	}

	top1, _ := s.Search(context.Background(), "q-leave", 1)
	if len(top1) != 1 || top1[0].Chunk.Text != "leave" {
		t.Errorf("top-1: %+v", top1)
	}
}

func TestStore_emptySearchDoesNotEmbed(t *testing.T) {
	emb := testEmbedder()
	s := Open("", emb)
	hits, err := s.Search(context.Background(), "q-leave", 3)
	if err != nil || len(hits) != 0 {
		t.Errorf("got %v, %v", hits, err)
	}
	if emb.calls != 0 {
		t.Error("empty index query must not call the embedder")
	}
}

func TestStore_removeSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.vec")
	emb := testEmbedder()
	s := Open(path, emb)
	addAll(t, s, chunk("a.pdf", "1-1", "leave"), chunk("b.pdf", "1-1", "pay"), chunk("a.pdf", "1-2", "sick"))

	payBefore, _ := s.Search(context.Background(), "q-pay", 3)

	removed, err := s.RemoveSource("a.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if s.Len() != 1 || s.CountSource("a.pdf") != 0 {
		t.Errorf("Len=%d remaining a.pdf=%d", s.Len(), s.CountSource("a.pdf"))
	}
	hits, _ := s.Search(context.Background(), "q-leave", 3)
	for _, h := range hits {
		if h.Chunk.Source == "a.pdf" {
			t.Errorf("removed source still returned: %+v", h)
		}
	}
	payAfter, _ := s.Search(context.Background(), "q-pay", 3)
	if len(payAfter) != 1 || len(payBefore) != 1 || payAfter[0].Score != payBefore[0].Score {
		t.Errorf("retained entry score changed: %+v vs %+v", payBefore, payAfter)
	}

	reopened := Open(path, emb)
	if reopened.Len() != 1 || reopened.Chunks()[0].Source != "b.pdf" {
		t.Errorf("removal not persisted: %+v", reopened.Chunks())
	}

	n, err := s.RemoveSource("missing.pdf")
	if err != nil || n != 0 {
		t.Errorf("removing unknown source: %d, %v", n, err)
	}
}

func TestStore_removeAllKeepsDimension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.vec")
	emb := testEmbedder()
	s := Open(path, emb)
	addAll(t, s, chunk("a.pdf", "1-1", "leave"))
	if _, err := s.RemoveSource("a.pdf"); err != nil {
		t.Fatal(err)
	}
	reopened := Open(path, emb)
	if reopened.LoadState() != LoadWarm || reopened.Len() != 0 || reopened.Dimension() != 3 {
		t.Errorf("state=%s Len=%d Dim=%d", reopened.LoadState(), reopened.Len(), reopened.Dimension())
	}
}

func TestStore_inconsistentArtifactsColdStart(t *testing.T) {
	tests := []struct {
		name   string
		damage func(t *testing.T, vecPath string)
	}{
		{"metadata missing", func(t *testing.T, p string) {
			if err := os.Remove(MetaPath(p)); err != nil {
				t.Fatal(err)
			}
		}},
		{"vectors missing", func(t *testing.T, p string) {
			if err := os.Remove(p); err != nil {
				t.Fatal(err)
			}
		}},
		{"count mismatch", func(t *testing.T, p string) {
			if err := writeMetaFile(MetaPath(p), []models.Chunk{chunk("a.pdf", "1-1", "leave")}); err != nil {
				t.Fatal(err)
			}
		}},
		{"corrupt header", func(t *testing.T, p string) {
			data := append([]byte{}, indexMagic[:]...)
			data = binary.LittleEndian.AppendUint32(data, indexVersion)
			data = binary.LittleEndian.AppendUint32(data, 0xFFFFFFF0)
			data = binary.LittleEndian.AppendUint32(data, 0xFFFFFFF0)
			if err := os.WriteFile(p, data, 0644); err != nil {
				t.Fatal(err)
			}
			if err := writeMetaFile(MetaPath(p), nil); err != nil {
				t.Fatal(err)
			}
		}},
		{"corrupt metadata", func(t *testing.T, p string) {
			if err := os.WriteFile(MetaPath(p), []byte("{not json"), 0644); err != nil {
				t.Fatal(err)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "index.vec")
			emb := testEmbedder()
			addAll(t, Open(path, emb), chunk("a.pdf", "1-1", "leave"), chunk("b.pdf", "1-1", "pay"))
			tt.damage(t, path)

			core, logs := observer.New(zapcore.WarnLevel)
			s := Open(path, emb, WithLogger(zap.New(core)))
			if s.Len() != 0 {
				t.Errorf("expected cold start, Len=%d", s.Len())
			}
			if s.LoadState() != LoadDiscarded {
				t.Errorf("state = %s, want discarded", s.LoadState())
			}
			if logs.Len() != 1 {
				t.Errorf("expected one warning, got %d", logs.Len())
			}
			// A fresh add after a cold start writes a consistent pair again.
			addAll(t, s, chunk("c.pdf", "1-1", "sick"))
			if Open(path, emb).LoadState() != LoadWarm {
				t.Error("store should be consistent after the next write")
			}
		})
	}
}

func TestStore_dimensionMismatch(t *testing.T) {
	emb := testEmbedder()
	emb.vectors["short"] = []float32{1, 0}
	s := Open("", emb)
	addAll(t, s, chunk("a.pdf", "1-1", "leave"))
	_, err := s.Add(context.Background(), []string{"short"}, []models.Chunk{chunk("b.pdf", "1-1", "short")})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("failed add must not change the store, Len=%d", s.Len())
	}
}

func TestStore_embedFailureLeavesStoreUnchanged(t *testing.T) {
	emb := testEmbedder()
	s := Open("", emb)
	addAll(t, s, chunk("a.pdf", "1-1", "leave"))
	emb.err = errors.New("all providers down")
	if _, err := s.Add(context.Background(), []string{"pay"}, []models.Chunk{chunk("b.pdf", "1-1", "pay")}); err == nil {
		t.Fatal("expected error")
	}
	if s.Len() != 1 {
		t.Errorf("Len=%d", s.Len())
	}
}

func TestStore_persistFailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	s := Open(filepath.Join(blocker, "index.vec"), testEmbedder())
	_, err := s.Add(context.Background(), []string{"leave"}, []models.Chunk{chunk("a.pdf", "1-1", "leave")})
	if err == nil {
		t.Fatal("expected persist error")
	}
	if s.Len() != 0 || s.Dimension() != 0 {
		t.Errorf("rollback incomplete: Len=%d Dim=%d", s.Len(), s.Dimension())
	}
}

func TestStore_failedMetadataWriteRestoresDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.vec")
	emb := testEmbedder()
	s := Open(path, emb)
	addAll(t, s, chunk("a.pdf", "1-1", "leave"), chunk("b.pdf", "1-1", "pay"))

	failures := 0
	s.writeMeta = func(p string, chunks []models.Chunk) error {
		if failures > 0 {
			failures--
			return errors.New("disk full")
		}
		return writeMetaFile(p, chunks)
	}

	failures = 1
	if _, err := s.Add(context.Background(), []string{"sick"}, []models.Chunk{chunk("c.pdf", "1-1", "sick")}); err == nil {
		t.Fatal("expected persist error on add")
	}
	reopened := Open(path, emb)
	if reopened.LoadState() != LoadWarm || reopened.Len() != 2 || s.Len() != 2 {
		t.Errorf("after failed add: disk state=%s Len=%d, memory Len=%d", reopened.LoadState(), reopened.Len(), s.Len())
	}

	failures = 1
	if _, err := s.RemoveSource("a.pdf"); err == nil {
		t.Fatal("expected persist error on remove")
	}
	reopened = Open(path, emb)
	if reopened.LoadState() != LoadWarm || reopened.Len() != 2 || s.Len() != 2 {
		t.Errorf("after failed remove: disk state=%s Len=%d, memory Len=%d", reopened.LoadState(), reopened.Len(), s.Len())
	}
	hits, err := reopened.Search(context.Background(), "q-leave", 1)
	if err != nil || len(hits) != 1 || hits[0].Chunk.Source != "a.pdf" {
		t.Errorf("restored index out of step with metadata: %+v, %v", hits, err)
	}
}

func TestStore_failedFirstWriteLeavesNoArtifacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.vec")
	s := Open(path, testEmbedder())
	s.writeMeta = func(string, []models.Chunk) error { return errors.New("disk full") }
	if _, err := s.Add(context.Background(), []string{"leave"}, []models.Chunk{chunk("a.pdf", "1-1", "leave")}); err == nil {
		t.Fatal("expected persist error")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("vector blob should be removed, stat err = %v", err)
	}
	if st := Open(path, testEmbedder()).LoadState(); st != LoadCold {
		t.Errorf("state = %s, want cold", st)
	}
}

func TestStore_indexTypeFallsBackToMemory(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	s := Open("", testEmbedder(), WithIndexType("faiss"), WithLogger(zap.New(core)))
	defer s.Close()
	want := IndexTypeMemory
	if IsFAISSAvailable() {
		want = IndexTypeFAISS
	}
	if s.IndexType() != want {
		t.Errorf("IndexType = %s, want %s", s.IndexType(), want)
	}
	if want == IndexTypeMemory && logs.Len() != 1 {
		t.Errorf("expected one fallback warning, got %d", logs.Len())
	}
	addAll(t, s, chunk("a.pdf", "1-1", "leave"), chunk("b.pdf", "1-1", "pay"))
	hits, err := s.Search(context.Background(), "q-pay", 1)
	if err != nil || len(hits) != 1 || hits[0].Chunk.Source != "b.pdf" {
		t.Errorf("search = %+v, %v", hits, err)
	}
}

func TestStore_lengthMismatch(t *testing.T) {
	s := Open("", testEmbedder())
	if _, err := s.Add(context.Background(), []string{"leave", "pay"}, []models.Chunk{chunk("a.pdf", "1-1", "leave")}); err == nil {
		t.Error("expected error for mismatched texts and chunks")
	}
}

func TestStore_Sources(t *testing.T) {
	s := Open("", testEmbedder())
	addAll(t, s, chunk("a.pdf", "1-1", "leave"), chunk("b.pdf", "1-1", "pay"), chunk("a.pdf", "1-2", "sick"))
	got := s.Sources()
	if len(got) != 2 || got[0].Source != "a.pdf" || got[0].Chunks != 2 || got[1].Source != "b.pdf" || got[1].Chunks != 1 {
		t.Errorf("unexpected sources: %+v", got)
	}
}

func TestMetaPath(t *testing.T) {
	tests := map[string]string{
		"store/index.vec":   "store/index.meta.json",
		"store/index.faiss": "store/index.meta.json",
		"store/index":       "store/index.meta.json",
	}
	for in, want := range tests {
		if got := MetaPath(in); got != want {
			t.Errorf("MetaPath(%q) = %q, want %q", in, got, want)
		}
	}
}
