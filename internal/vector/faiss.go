//go:build faiss && cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"fmt"
	"os"
	"path/filepath"
	"unsafe"
)

// FAISSIndex is an exact inner-product index backed by a FAISS IndexFlatIP. A Go copy of
// the matrix is kept alongside the native index: FAISS flat indexes cannot drop rows
// without renumbering, so Keep and Reset rebuild the native side from that copy.
type FAISSIndex struct {
	index  *C.FaissIndex
	matrix *FlatIndex
}

var _ Index = (*FAISSIndex)(nil)

func newFAISSIndex() (Index, error) {
	return &FAISSIndex{matrix: NewFlatIndex()}, nil
}

func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Dim returns the index dimension, or 0 before the first Add.
func (f *FAISSIndex) Dim() int { return f.matrix.Dim() }

// Len returns the number of rows.
func (f *FAISSIndex) Len() int { return f.matrix.Len() }

// Rows returns the Go copy of the matrix.
func (f *FAISSIndex) Rows() [][]float32 { return f.matrix.Rows() }

// Type returns IndexTypeFAISS.
func (f *FAISSIndex) Type() IndexType { return IndexTypeFAISS }

// Add appends vectors in order. Either all vectors are added or none.
func (f *FAISSIndex) Add(vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	prevDim, prevRows := f.matrix.Dim(), f.matrix.Rows()
	if err := f.matrix.Add(vectors); err != nil {
		return err
	}
	if err := f.ensureNative(f.matrix.Dim()); err != nil {
		_ = f.matrix.Reset(prevDim, prevRows)
		return err
	}
	if err := f.addNative(vectors); err != nil {
		_ = f.Reset(prevDim, prevRows)
		return err
	}
	return nil
}

// Search returns up to k rows by descending inner product.
func (f *FAISSIndex) Search(query []float32, k int) ([]Match, error) {
	n := f.matrix.Len()
	if n == 0 || k <= 0 || f.index == nil {
		return nil, nil
	}
	if len(query) != f.matrix.Dim() {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(query), f.matrix.Dim())
	}
	if k > n {
		k = n
	}
	distances := make([]float32, k)
	labels := make([]int64, k)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}
	matches := make([]Match, 0, k)
	for i, label := range labels {
		if label < 0 {
			continue
		}
		matches = append(matches, Match{Position: int(label), Score: float64(distances[i])})
	}
	return matches, nil
}

// Keep rebuilds the native index from the retained rows.
func (f *FAISSIndex) Keep(keep func(pos int) bool) error {
	if err := f.matrix.Keep(keep); err != nil {
		return err
	}
	return f.rebuild()
}

// Reset replaces the contents with rows at the given dimension.
func (f *FAISSIndex) Reset(dim int, rows [][]float32) error {
	if err := f.matrix.Reset(dim, rows); err != nil {
		return err
	}
	if f.index != nil && int(C.faiss_Index_d(f.index)) != dim {
		f.free()
	}
	return f.rebuild()
}

// Save writes the native index through a temporary file renamed into place.
func (f *FAISSIndex) Save(path string) error {
	if f.index == nil {
		return fmt.Errorf("FAISS index has no dimension yet")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpName)

	cPath := C.CString(tmpName)
	defer C.free(unsafe.Pointer(cPath))
	if ret := C.faiss_write_index_fname(f.index, cPath); ret != 0 {
		return fmt.Errorf("failed to save FAISS index: %s", faissLastError())
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Load reads a FAISS index file and reconstructs the Go copy of its matrix.
func (f *FAISSIndex) Load(path string) error {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var loaded *C.FaissIndex
	if ret := C.faiss_read_index_fname(cPath, 0, &loaded); ret != 0 {
		return fmt.Errorf("failed to load FAISS index: %s", faissLastError())
	}
	dim := int(C.faiss_Index_d(loaded))
	n := int(C.faiss_Index_ntotal(loaded))
	if dim <= 0 || dim > maxDimension {
		C.faiss_Index_free(loaded)
		return fmt.Errorf("FAISS index dimension %d out of range", dim)
	}
	rows := make([][]float32, n)
	if n > 0 {
		flat := make([]float32, n*dim)
		ret := C.faiss_Index_reconstruct_n(loaded, 0, C.idx_t(n), (*C.float)(unsafe.Pointer(&flat[0])))
		if ret != 0 {
			C.faiss_Index_free(loaded)
			return fmt.Errorf("failed to read FAISS vectors: %s", faissLastError())
		}
		for i := range rows {
			rows[i] = flat[i*dim : (i+1)*dim : (i+1)*dim]
		}
	}
	f.free()
	f.index = loaded
	return f.matrix.Reset(dim, rows)
}

// Close frees the native index.
func (f *FAISSIndex) Close() error {
	f.free()
	return nil
}

func (f *FAISSIndex) ensureNative(dim int) error {
	if f.index != nil {
		return nil
	}
	var idx *C.FaissIndexFlatIP
	if ret := C.faiss_IndexFlatIP_new_with(&idx, C.idx_t(dim)); ret != 0 {
		return fmt.Errorf("failed to create FAISS index: %s", faissLastError())
	}
	f.index = (*C.FaissIndex)(unsafe.Pointer(idx))
	return nil
}

func (f *FAISSIndex) addNative(vectors [][]float32) error {
	dim := f.matrix.Dim()
	flat := make([]float32, len(vectors)*dim)
	for i, v := range vectors {
		copy(flat[i*dim:(i+1)*dim], v)
	}
	ret := C.faiss_Index_add(f.index, C.idx_t(len(vectors)), (*C.float)(unsafe.Pointer(&flat[0])))
	if ret != 0 {
		return fmt.Errorf("failed to add vectors to FAISS index: %s", faissLastError())
	}
	return nil
}

func (f *FAISSIndex) rebuild() error {
	dim := f.matrix.Dim()
	if dim == 0 {
		f.free()
		return nil
	}
	if err := f.ensureNative(dim); err != nil {
		return err
	}
	if ret := C.faiss_Index_reset(f.index); ret != 0 {
		return fmt.Errorf("failed to reset FAISS index: %s", faissLastError())
	}
	if rows := f.matrix.Rows(); len(rows) > 0 {
		return f.addNative(rows)
	}
	return nil
}

func (f *FAISSIndex) free() {
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
}
