package embedding

import (
	"context"

	"github.com/hyperjump/mentoria/pkg/utils"
)

// MockEmbedder is a deterministic bag-of-words embedder for tests and offline
// runs. Each word adds a signed unit to a hashed dimension, so texts sharing
// words score higher against each other.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns a mock embedder; non-positive dimensions default to 384.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a unit-length vector for text.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v := make([]float32, e.dimensions)
	for i := range v {
		v[i] = 0.01
	}
	for _, w := range Words(text) {
		h := wordHash(w)
		sign := float32(1)
		if h&(1<<31) != 0 {
			sign = -1
		}
		v[h%uint32(e.dimensions)] += sign
	}
	utils.NormalizeL2(v)
	return v, nil
}

// EmbedBatch embeds each text in turn.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the vector length.
func (e *MockEmbedder) Dimensions() int { return e.dimensions }

// Close is a no-op.
func (e *MockEmbedder) Close() error { return nil }
