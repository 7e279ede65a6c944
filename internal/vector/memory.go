package vector

import (
	"container/heap"
	"context"
	"fmt"
)

// MemoryIndex answers exact top-k inner product queries over vectors held in
// memory. It reads the flat artifact format, so it serves the same files as
// FAISSIndex without cgo. It is immutable once built and safe for concurrent use.
type MemoryIndex struct {
	dimensions int
	vectors    [][]float32
}

// NewMemoryIndex builds an index over vectors, which must all have dimensions entries.
func NewMemoryIndex(dimensions int, vectors [][]float32) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	owned := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dimensions {
			return nil, fmt.Errorf("%w: row %d has %d, expected %d", ErrDimensionMismatch, i, len(v), dimensions)
		}
		owned[i] = append([]float32(nil), v...)
	}
	return &MemoryIndex{dimensions: dimensions, vectors: owned}, nil
}

// OpenMemoryIndex loads a flat index file.
func OpenMemoryIndex(path string) (*MemoryIndex, error) {
	data, err := ReadFlatIndex(path)
	if err != nil {
		return nil, err
	}
	return &MemoryIndex{dimensions: data.Dimensions, vectors: data.Vectors}, nil
}

// Search returns k slots by descending inner product, ties broken by row. When k
// exceeds the number of rows the tail is padded with Row -1, as FAISS does.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), m.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	best := make(minHeap, 0, min(k, len(m.vectors)))
	for row, vec := range m.vectors {
		r := VectorResult{Row: int64(row), Score: dot(query, vec)}
		if len(best) < k {
			heap.Push(&best, r)
		} else if r.Score > best[0].Score {
			best[0] = r
			heap.Fix(&best, 0)
		}
	}

	results := make([]*VectorResult, k)
	for i := len(best) - 1; i >= 0; i-- {
		r := heap.Pop(&best).(VectorResult)
		results[i] = &r
	}
	for i := range results {
		if results[i] == nil {
			results[i] = &VectorResult{Row: -1}
		}
	}
	return results, nil
}

// Size returns the number of vectors.
func (m *MemoryIndex) Size() int { return len(m.vectors) }

// Dimensions returns the vector dimension.
func (m *MemoryIndex) Dimensions() int { return m.dimensions }

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string { return string(IndexTypeMemory) }

// Close is a no-op.
func (m *MemoryIndex) Close() error { return nil }

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// minHeap keeps the current top-k with the weakest result at the root. Among
// equal scores the higher row is weaker, so lower rows win ties.
type minHeap []VectorResult

func (h minHeap) Len() int { return len(h) }
func (h minHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].Row > h[j].Row
}
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(VectorResult)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}
