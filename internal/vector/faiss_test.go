//go:build faiss && cgo

package vector

import (
	"path/filepath"
	"testing"
)

func newTestFAISS(t *testing.T) Index {
	t.Helper()
	idx, err := newFAISSIndex()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestFAISSIndex_AddSearch(t *testing.T) {
	idx := newTestFAISS(t)
	if err := idx.Add([][]float32{{1, 0, 0}, {0.8, 0.6, 0}, {0, 1, 0}}); err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 3 || idx.Dim() != 3 {
		t.Fatalf("Len=%d Dim=%d", idx.Len(), idx.Dim())
	}
	matches, err := idx.Search([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 || matches[0].Position != 0 || matches[1].Position != 1 {
		t.Errorf("matches = %+v", matches)
	}
}

func TestFAISSIndex_SearchEmpty(t *testing.T) {
	idx := newTestFAISS(t)
	matches, err := idx.Search([]float32{1, 0, 0}, 10)
	if err != nil || len(matches) != 0 {
		t.Errorf("matches = %+v, err = %v", matches, err)
	}
}

func TestFAISSIndex_KeepRenumbers(t *testing.T) {
	idx := newTestFAISS(t)
	_ = idx.Add([][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}})
	if err := idx.Keep(func(pos int) bool { return pos != 0 }); err != nil {
		t.Fatal(err)
	}
	matches, err := idx.Search([]float32{0, 0, 1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 2 || len(matches) != 1 || matches[0].Position != 1 {
		t.Errorf("Len=%d matches=%+v", idx.Len(), matches)
	}
}

func TestFAISSIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.faiss")
	idx := newTestFAISS(t)
	_ = idx.Add([][]float32{{1, 0, 0}, {0, 1, 0}})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded := newTestFAISS(t)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != 2 || loaded.Dim() != 3 {
		t.Fatalf("Len=%d Dim=%d", loaded.Len(), loaded.Dim())
	}
	if loaded.Rows()[1][1] != 1 {
		t.Errorf("reconstructed rows = %v", loaded.Rows())
	}
	matches, err := loaded.Search([]float32{0, 1, 0}, 1)
	if err != nil || len(matches) != 1 || matches[0].Position != 1 {
		t.Errorf("matches = %+v, err = %v", matches, err)
	}
}

func TestFAISSIndex_LoadRejectsFlatBlob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.vec")
	flat := NewFlatIndex()
	_ = flat.Add([][]float32{{1, 0}})
	if err := flat.Save(path); err != nil {
		t.Fatal(err)
	}
	if err := newTestFAISS(t).Load(path); err == nil {
		t.Error("expected error loading a non-FAISS file")
	}
}
