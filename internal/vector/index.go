// Package vector provides vector index artifacts, similarity search, and the per-agent index store.
package vector

import (
	"context"
	"errors"
)

// Artifact file names inside an index directory.
const (
	IndexFileName    = "faiss.index"
	MetadataFileName = "meta.json"
)

var (
	// ErrIndexNotFound is returned when an artifact is missing, unreadable, or corrupt.
	ErrIndexNotFound = errors.New("vector index not found")
	// ErrMisaligned is returned when index rows and metadata records differ in count.
	ErrMisaligned = errors.New("vector index and metadata are misaligned")
	// ErrDimensionMismatch is returned when a query vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// VectorIndex is a read-only top-k inner product index over unit vectors.
type VectorIndex interface {
	// Search returns up to k results ordered by descending score. A Row of -1
	// marks a slot the index could not fill and must be skipped.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Size() int
	Dimensions() int
	Type() string
	Close() error
}

// VectorResult is a single vector search hit. Row is the position of the vector
// in the artifact and of its record in the metadata file.
type VectorResult struct {
	Row   int64
	Score float64 // Inner product (cosine similarity for normalized vectors)
}
