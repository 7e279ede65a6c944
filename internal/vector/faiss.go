//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"unsafe"
)

const faissCompiled = true

var errFAISSClosed = errors.New("faiss index is closed")

// FAISSIndex serves an artifact through libfaiss. Any index type the ingestion
// pipeline writes can be read, not only flat ones.
type FAISSIndex struct {
	mu         sync.RWMutex
	index      *C.FaissIndex
	dimensions int
	size       int
}

// OpenFAISSIndex reads the index artifact at path.
func OpenFAISSIndex(path string) (*FAISSIndex, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var index *C.FaissIndex
	if C.faiss_read_index_fname(cPath, 0, &index) != 0 {
		return nil, fmt.Errorf("read faiss index %s: %s", path, faissLastError())
	}
	return &FAISSIndex{
		index:      index,
		dimensions: int(C.faiss_Index_d(index)),
		size:       int(C.faiss_Index_ntotal(index)),
	}, nil
}

func faissLastError() string {
	if msg := C.faiss_get_last_error(); msg != nil {
		return C.GoString(msg)
	}
	return "unknown error"
}

// Search returns k slots by descending inner product. FAISS marks slots it
// cannot fill with label -1.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), f.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.index == nil {
		return nil, errFAISSClosed
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
		return nil, fmt.Errorf("faiss search: %s", faissLastError())
	}

	results := make([]*VectorResult, k)
	for i := range results {
		results[i] = &VectorResult{Row: labels[i], Score: float64(distances[i])}
	}
	return results, nil
}

// Size returns the number of vectors in the artifact.
func (f *FAISSIndex) Size() int { return f.size }

// Dimensions returns the vector dimension.
func (f *FAISSIndex) Dimensions() int { return f.dimensions }

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string { return string(IndexTypeFAISS) }

// Close frees the native index. Later searches fail.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}
