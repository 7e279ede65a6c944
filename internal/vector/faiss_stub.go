//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import (
	"context"
	"errors"
)

const faissCompiled = false

var errFAISSUnavailable = errors.New("faiss support not compiled in: build with -tags=faiss and install libfaiss_c")

// FAISSIndex is unavailable in builds without the faiss tag.
type FAISSIndex struct{}

// OpenFAISSIndex always fails without FAISS.
func OpenFAISSIndex(string) (*FAISSIndex, error) {
	return nil, errFAISSUnavailable
}

func (f *FAISSIndex) Search(context.Context, []float32, int) ([]*VectorResult, error) {
	return nil, errFAISSUnavailable
}

func (f *FAISSIndex) Size() int       { return 0 }
func (f *FAISSIndex) Dimensions() int { return 0 }
func (f *FAISSIndex) Type() string    { return string(IndexTypeFAISS) }
func (f *FAISSIndex) Close() error    { return nil }
