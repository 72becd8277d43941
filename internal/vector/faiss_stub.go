//go:build !faiss || !cgo

package vector

func newFAISSIndex() (Index, error) {
	return nil, ErrFAISSUnavailable
}
