package fileid

import (
	"testing"
)

func TestDigest(t *testing.T) {
	d1 := Digest([]byte("annual leave policy"))
	d2 := Digest([]byte("annual leave policy"))
	if d1 != d2 {
		t.Errorf("same content should give same digest: %q vs %q", d1, d2)
	}
	if d1[:len(prefix)] != prefix {
		t.Errorf("digest should have prefix %q: got %q", prefix, d1)
	}
	if len(d1) != len(prefix)+64 {
		t.Errorf("unexpected digest length: %q", d1)
	}
}

func TestDigest_differentContent(t *testing.T) {
	if Digest([]byte("a")) == Digest([]byte("b")) {
		t.Error("different content should give different digests")
	}
}

func TestSourceName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/data/uploads/handbook.pdf", "handbook.pdf"},
		{"handbook.pdf", "handbook.pdf"},
		{"./a/../b/leave.docx", "leave.docx"},
	}
	for _, tt := range tests {
		if got := SourceName(tt.path); got != tt.want {
			t.Errorf("SourceName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
