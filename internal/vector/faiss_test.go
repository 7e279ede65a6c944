//go:build faiss && cgo
// +build faiss,cgo

package vector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func writeFlat(t *testing.T, dims int, vectors [][]float32) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), IndexFileName)
	if err := WriteFlatIndex(path, dims, vectors); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFAISSIndex_ReadsFlatArtifact(t *testing.T) {
	idx, err := OpenFAISSIndex(writeFlat(t, 3, [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}))
	if err != nil {
		t.Fatalf("OpenFAISSIndex: %v", err)
	}
	defer idx.Close()
	if idx.Size() != 3 || idx.Dimensions() != 3 {
		t.Fatalf("size=%d dims=%d", idx.Size(), idx.Dimensions())
	}
	results, err := idx.Search(context.Background(), []float32{0, 0, 1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Row != 2 {
		t.Errorf("expected row 2, got %d", results[0].Row)
	}
}

func TestFAISSIndex_AgreesWithMemoryIndex(t *testing.T) {
	path := writeFlat(t, 2, [][]float32{{1, 0}, {0.6, 0.8}, {0, 1}})
	native, err := OpenFAISSIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	defer native.Close()
	mem, err := OpenMemoryIndex(path)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	query := []float32{0.8, 0.6}
	a, _ := native.Search(ctx, query, 3)
	b, _ := mem.Search(ctx, query, 3)
	for i := range a {
		if a[i].Row != b[i].Row {
			t.Errorf("slot %d: faiss row %d, memory row %d", i, a[i].Row, b[i].Row)
		}
	}
}

func TestFAISSIndex_SearchPadsMissingRows(t *testing.T) {
	idx, err := OpenFAISSIndex(writeFlat(t, 2, [][]float32{{1, 0}}))
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	results, err := idx.Search(context.Background(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 || results[1].Row != -1 || results[2].Row != -1 {
		t.Errorf("expected -1 padding, got %+v", results)
	}
}

func TestFAISSIndex_Errors(t *testing.T) {
	idx, err := OpenFAISSIndex(writeFlat(t, 2, [][]float32{{1, 0}}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Search(context.Background(), []float32{1}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	_ = idx.Close()
	if _, err := idx.Search(context.Background(), []float32{1, 0}, 1); err == nil {
		t.Error("expected error after Close")
	}
	if _, err := OpenFAISSIndex(filepath.Join(t.TempDir(), "missing.index")); err == nil {
		t.Error("expected error for missing file")
	}
}
