package vector

import (
	"errors"
	"fmt"
)

// ErrFAISSUnavailable is returned when the binary was built without FAISS support.
var ErrFAISSUnavailable = errors.New("FAISS not available: build with -tags=faiss and install the FAISS C library")

// Index is an inner-product index over normalised vectors addressed by insertion position.
// The dimension is fixed by the first vectors added and survives removals. Implementations
// are not safe for concurrent use; Store locks them.
type Index interface {
	// Dim returns the index dimension, or 0 before the first Add.
	Dim() int
	// Len returns the number of rows.
	Len() int
	// Add appends vectors in order. Either all vectors are added or none.
	Add(vectors [][]float32) error
	// Search returns up to k rows by descending inner product.
	Search(query []float32, k int) ([]Match, error)
	// Keep rebuilds the index from the rows for which keep returns true, preserving order.
	Keep(keep func(pos int) bool) error
	// Rows returns the stored matrix in position order. It must not be modified.
	Rows() [][]float32
	// Reset replaces the contents with rows at the given dimension.
	Reset(dim int, rows [][]float32) error
	// Save writes the index to path atomically.
	Save(path string) error
	// Load replaces the contents with the index stored at path.
	Load(path string) error
	// Type names the backend.
	Type() IndexType
	// Close releases any native resources.
	Close() error
}

var _ Index = (*FlatIndex)(nil)

// IndexType names a vector index backend.
type IndexType string

const (
	// IndexTypeMemory is the exact in-process FlatIndex.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeFAISS is a FAISS IndexFlatIP. Requires FAISS and building with -tags=faiss.
	IndexTypeFAISS IndexType = "faiss"
)

// NewIndex creates an empty index of the given type. Supported types: "memory" (default)
// and "faiss".
func NewIndex(indexType string) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		return NewFlatIndex(), nil
	case IndexTypeFAISS:
		return newFAISSIndex()
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, faiss)", indexType)
	}
}

// IsFAISSAvailable reports whether FAISS support is compiled in.
func IsFAISSAvailable() bool {
	idx, err := newFAISSIndex()
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
