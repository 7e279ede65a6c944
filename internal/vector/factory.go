package vector

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/qdrant/go-client/qdrant"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory loads flat artifacts into memory with exact search. Default, no cgo.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeFAISS reads artifacts with libfaiss. Requires -tags=faiss.
	IndexTypeFAISS IndexType = "faiss"
	// IndexTypeQdrant searches a remote collection per agent; metadata stays local.
	IndexTypeQdrant IndexType = "qdrant"
)

// Opener opens the index part of an artifact. key names the artifact (agent id or
// fallback name) and dir is its local directory.
type Opener interface {
	Open(ctx context.Context, key, dir string) (VectorIndex, error)
	Close() error
}

// QdrantOptions configures the qdrant opener.
type QdrantOptions struct {
	Host             string
	Port             int
	CollectionPrefix string
}

// NewOpener creates an opener for the given index type.
// Supported types: "memory" (default), "faiss", "qdrant".
func NewOpener(ctx context.Context, indexType string, qopts QdrantOptions) (Opener, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		return fileOpener{open: func(path string) (VectorIndex, error) { return OpenMemoryIndex(path) }}, nil
	case IndexTypeFAISS:
		if !IsFAISSAvailable() {
			return nil, fmt.Errorf("index type faiss requires a build with -tags=faiss")
		}
		return fileOpener{open: func(path string) (VectorIndex, error) { return OpenFAISSIndex(path) }}, nil
	case IndexTypeQdrant:
		client, err := connectQdrant(ctx, qopts.Host, qopts.Port)
		if err != nil {
			return nil, err
		}
		return &qdrantOpener{client: client, prefix: qopts.CollectionPrefix}, nil
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, faiss, qdrant)", indexType)
	}
}

// IsFAISSAvailable returns true if FAISS support is compiled in.
func IsFAISSAvailable() bool {
	return faissCompiled
}

type fileOpener struct {
	open func(path string) (VectorIndex, error)
}

func (o fileOpener) Open(ctx context.Context, key, dir string) (VectorIndex, error) {
	idx, err := o.open(filepath.Join(dir, IndexFileName))
	if err != nil {
		return nil, notFound(err)
	}
	return idx, nil
}

func (o fileOpener) Close() error { return nil }

type qdrantOpener struct {
	client *qdrant.Client
	prefix string
}

func (o *qdrantOpener) Open(ctx context.Context, key, dir string) (VectorIndex, error) {
	return OpenQdrantIndex(ctx, o.client, o.prefix+key)
}

func (o *qdrantOpener) Close() error {
	return o.client.Close()
}

// notFound classifies a read or parse failure as ErrIndexNotFound while keeping the cause.
func notFound(err error) error {
	if errors.Is(err, ErrIndexNotFound) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrIndexNotFound, err)
}

// isMissing reports whether err stems from an absent file rather than a corrupt one.
func isMissing(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
