package vector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hyperjump/mentoria/internal/models"
)

func newTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	opener, err := NewOpener(context.Background(), "memory", QdrantOptions{})
	if err != nil {
		t.Fatal(err)
	}
	s := NewStore(dir, "default", opener)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeTestArtifact(t *testing.T, dir string, n int) {
	t.Helper()
	vectors := make([][]float32, n)
	chunks := make([]models.DocumentChunk, n)
	for i := 0; i < n; i++ {
		vec := make([]float32, 4)
		vec[i%4] = 1
		vectors[i] = vec
		chunks[i] = models.DocumentChunk{ID: string(rune('a' + i)), Source: "doc.md", Text: "texto"}
	}
	if err := WriteArtifact(dir, 4, vectors, chunks); err != nil {
		t.Fatal(err)
	}
}

func TestStore_LoadAgentArtifact(t *testing.T) {
	dir := t.TempDir()
	writeTestArtifact(t, filepath.Join(dir, "tutor"), 3)
	writeTestArtifact(t, filepath.Join(dir, "default"), 2)
	s := newTestStore(t, dir)

	c, err := s.Load(context.Background(), "tutor")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Key != "tutor" || len(c.Chunks) != 3 || c.Index.Size() != 3 {
		t.Errorf("unexpected corpus key=%s chunks=%d rows=%d", c.Key, len(c.Chunks), c.Index.Size())
	}
}

func TestStore_Fallback(t *testing.T) {
	dir := t.TempDir()
	writeTestArtifact(t, filepath.Join(dir, "default"), 2)
	s := newTestStore(t, dir)
	ctx := context.Background()

	c, err := s.Load(ctx, "planner")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Key != "default" {
		t.Errorf("expected fallback corpus, got %s", c.Key)
	}

	// Agents sharing the fallback share one loaded corpus.
	c2, err := s.Load(ctx, "helper")
	if err != nil {
		t.Fatal(err)
	}
	if c != c2 {
		t.Error("expected the fallback corpus to be loaded once")
	}

	// Ids that cannot name a directory go straight to the fallback.
	c3, err := s.Load(ctx, "../tutor")
	if err != nil || c3.Key != "default" {
		t.Errorf("expected fallback for unsafe id, got %v, %v", c3, err)
	}
}

func TestStore_NotFound(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	_, err := s.Load(context.Background(), "ghost-agent")
	if !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
	if len(s.Cached()) != 0 {
		t.Errorf("failed load should not be cached: %v", s.Cached())
	}
}

func TestStore_Misaligned(t *testing.T) {
	dir := t.TempDir()
	agentDir := filepath.Join(dir, "tutor")
	writeTestArtifact(t, agentDir, 3)
	if err := WriteMetadata(filepath.Join(agentDir, MetadataFileName), []models.DocumentChunk{{ID: "only"}}); err != nil {
		t.Fatal(err)
	}
	writeTestArtifact(t, filepath.Join(dir, "default"), 2)
	s := newTestStore(t, dir)
	ctx := context.Background()

	_, err := s.Load(ctx, "tutor")
	if !errors.Is(err, ErrMisaligned) {
		t.Fatalf("expected ErrMisaligned, got %v", err)
	}
	if len(s.Cached()) != 0 {
		t.Error("misaligned load should not be cached")
	}

	writeTestArtifact(t, agentDir, 3)
	c, err := s.Load(ctx, "tutor")
	if err != nil {
		t.Fatalf("Load after repair: %v", err)
	}
	if c.Key != "tutor" {
		t.Errorf("expected repaired agent artifact, got %s", c.Key)
	}
}

func TestStore_CorruptNotCached(t *testing.T) {
	dir := t.TempDir()
	agentDir := filepath.Join(dir, "tutor")
	if err := os.MkdirAll(agentDir, 0755); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(agentDir, MetadataFileName), []byte("{not json"), 0644)
	_ = os.WriteFile(filepath.Join(agentDir, IndexFileName), []byte("garbage"), 0644)
	s := newTestStore(t, dir)
	ctx := context.Background()

	if _, err := s.Load(ctx, "tutor"); !errors.Is(err, ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound for corrupt artifact, got %v", err)
	}

	writeTestArtifact(t, agentDir, 2)
	c, err := s.Load(ctx, "tutor")
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if len(c.Chunks) != 2 {
		t.Errorf("chunks=%d, want 2", len(c.Chunks))
	}
}

func TestStore_CachesSuccess(t *testing.T) {
	dir := t.TempDir()
	agentDir := filepath.Join(dir, "tutor")
	writeTestArtifact(t, agentDir, 2)
	s := newTestStore(t, dir)
	ctx := context.Background()

	first, err := s.Load(ctx, "tutor")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(agentDir); err != nil {
		t.Fatal(err)
	}
	second, err := s.Load(ctx, "tutor")
	if err != nil {
		t.Fatalf("cached load failed: %v", err)
	}
	if first != second {
		t.Error("expected the cached corpus")
	}
	if got := s.Cached(); len(got) != 1 || got[0] != "tutor" {
		t.Errorf("Cached() = %v", got)
	}
}

func TestStore_ConcurrentLoad(t *testing.T) {
	dir := t.TempDir()
	writeTestArtifact(t, filepath.Join(dir, "tutor"), 4)
	s := newTestStore(t, dir)

	var wg sync.WaitGroup
	results := make([]*Corpus, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := s.Load(context.Background(), "tutor")
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = c
		}(i)
	}
	wg.Wait()
	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatal("concurrent loads returned different corpora")
		}
	}
}

func TestNewOpener_Unknown(t *testing.T) {
	if _, err := NewOpener(context.Background(), "unknown", QdrantOptions{}); err == nil {
		t.Error("expected error for unknown index type")
	}
}

func TestIsFAISSAvailable(t *testing.T) {
	if IsFAISSAvailable() {
		if _, err := NewOpener(context.Background(), "faiss", QdrantOptions{}); err != nil {
			t.Errorf("faiss opener: %v", err)
		}
		return
	}
	if _, err := NewOpener(context.Background(), "faiss", QdrantOptions{}); err == nil {
		t.Error("expected error for faiss opener without FAISS support")
	}
}
