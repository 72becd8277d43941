package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskUsage(t *testing.T) {
	dir := t.TempDir()

	f1 := filepath.Join(dir, "index.vec")
	if err := os.WriteFile(f1, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "uploads")
	if err := os.MkdirAll(filepath.Join(sub, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "a.txt"), []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "nested", "b.txt"), []byte("cde"), 0644); err != nil {
		t.Fatal(err)
	}

	usage, total, err := DiskUsage(f1, sub, filepath.Join(dir, "missing"), "")
	if err != nil {
		t.Fatal(err)
	}
	if total != 10 {
		t.Errorf("total = %d, want 10", total)
	}
	if len(usage) != 3 {
		t.Fatalf("expected 3 entries (empty path skipped), got %+v", usage)
	}
	if usage[0].Bytes != 5 || usage[1].Bytes != 5 || usage[2].Bytes != 0 {
		t.Errorf("unexpected per-path usage: %+v", usage)
	}
}
