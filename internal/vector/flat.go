// Package vector holds the inner-product indexes over normalised chunk vectors and the
// store that keeps them in lock-step with chunk metadata on disk.
package vector

import (
	"errors"
	"fmt"
	"sort"
)

// ErrDimensionMismatch is returned when a vector's length differs from the index dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Match is a raw search result: a row position and its inner product with the query.
type Match struct {
	Position int
	Score    float64
}

// FlatIndex is an exact inner-product index over a raw matrix held in process. It is the
// default Index.
type FlatIndex struct {
	dim  int
	rows [][]float32
}

// NewFlatIndex returns an empty index with no dimension yet.
func NewFlatIndex() *FlatIndex {
	return &FlatIndex{}
}

// Dim returns the index dimension, or 0 before the first Add.
func (f *FlatIndex) Dim() int { return f.dim }

// Len returns the number of rows.
func (f *FlatIndex) Len() int { return len(f.rows) }

// Add appends vectors in order. Either all vectors are added or none.
func (f *FlatIndex) Add(vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	dim := f.dim
	if dim == 0 {
		dim = len(vectors[0])
	}
	if dim == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d dimensions, index has %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}
	f.dim = dim
	for _, v := range vectors {
		row := make([]float32, dim)
		copy(row, v)
		f.rows = append(f.rows, row)
	}
	return nil
}

// Search returns up to k rows by descending inner product; ties keep insertion order.
func (f *FlatIndex) Search(query []float32, k int) ([]Match, error) {
	if len(f.rows) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(query), f.dim)
	}
	matches := make([]Match, len(f.rows))
	for i, row := range f.rows {
		matches[i] = Match{Position: i, Score: InnerProduct(query, row)}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k > len(matches) {
		k = len(matches)
	}
	return matches[:k], nil
}

// Keep rebuilds the index from the rows for which keep returns true, preserving their order.
// Vectors are reused as stored; nothing is re-embedded.
func (f *FlatIndex) Keep(keep func(pos int) bool) error {
	kept := make([][]float32, 0, len(f.rows))
	for i, row := range f.rows {
		if keep(i) {
			kept = append(kept, row)
		}
	}
	f.rows = kept
	return nil
}

// Row returns the stored vector at pos. The slice must not be modified.
func (f *FlatIndex) Row(pos int) []float32 {
	return f.rows[pos]
}

// Rows returns the stored matrix in position order.
func (f *FlatIndex) Rows() [][]float32 { return f.rows }

// Reset replaces the contents with rows at the given dimension. The rows are not copied.
func (f *FlatIndex) Reset(dim int, rows [][]float32) error {
	for i, row := range rows {
		if len(row) != dim {
			return fmt.Errorf("%w: row %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(row), dim)
		}
	}
	f.dim, f.rows = dim, rows
	return nil
}

// Type returns IndexTypeMemory.
func (f *FlatIndex) Type() IndexType { return IndexTypeMemory }

// Close is a no-op.
func (f *FlatIndex) Close() error { return nil }
