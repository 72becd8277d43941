package embedding

import (
	"testing"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("p", "a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("p", "a", []float32{1, 2, 3})
	v, ok := c.Get("p", "a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("p", "b", []float32{4, 5})
	c.Set("p", "c", []float32{6}) // evicts a
	if _, ok := c.Get("p", "a"); ok {
		t.Error("expected a to be evicted")
	}
	if _, ok := c.Get("p", "b"); !ok {
		t.Error("expected b to remain")
	}
	if _, ok := c.Get("p", "c"); !ok {
		t.Error("expected c to be present")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestEmbeddingCache_providersAreSeparate(t *testing.T) {
	c := NewEmbeddingCache(10)
	c.Set("ollama", "leave", []float32{1})
	if _, ok := c.Get("gemini", "leave"); ok {
		t.Error("a vector cached for one provider must not be served for another")
	}
}

func TestEmbeddingCache_updateMovesToFront(t *testing.T) {
	c := NewEmbeddingCache(2)
	c.Set("p", "a", []float32{1})
	c.Set("p", "b", []float32{2})
	c.Set("p", "a", []float32{9}) // refresh a
	c.Set("p", "c", []float32{3}) // evicts b
	if v, ok := c.Get("p", "a"); !ok || v[0] != 9 {
		t.Errorf("a: got %v, %v", v, ok)
	}
	if _, ok := c.Get("p", "b"); ok {
		t.Error("expected b to be evicted")
	}
}
