package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBytes(t *testing.T, path string, n int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, make([]byte, n), 0644))
}

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "progress.db")
	writeBytes(t, file, 5)
	index := filepath.Join(dir, "index")
	writeBytes(t, filepath.Join(index, "tutor", "faiss.index"), 2)
	writeBytes(t, filepath.Join(index, "default", "meta.json"), 1)

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"single file", []string{file}, 5},
		{"nested directory", []string{index}, 3},
		{"file and directory", []string{file, index}, 8},
		{"missing path skipped", []string{file, filepath.Join(dir, "nope"), index}, 8},
		{"empty path skipped", []string{"", file}, 5},
		{"nothing", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiskUsageBytes(tt.paths...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMeasureUsage(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "progress.db")
	writeBytes(t, db, 10)
	writeBytes(t, db+"-wal", 4)
	writeBytes(t, filepath.Join(dir, "index", "default", "faiss.index"), 6)

	usage, err := MeasureUsage(db, filepath.Join(dir, "index"))
	require.NoError(t, err)
	assert.Equal(t, Usage{DatabaseBytes: 14, IndexBytes: 6}, usage)
	assert.Equal(t, int64(20), usage.Total())

	usage, err = MeasureUsage(":memory:", filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Zero(t, usage.Total())
}

func TestDatabaseFiles(t *testing.T) {
	assert.Nil(t, DatabaseFiles(":memory:"))
	assert.Nil(t, DatabaseFiles(""))
	assert.Equal(t, []string{"/tmp/p.db", "/tmp/p.db-wal", "/tmp/p.db-shm"}, DatabaseFiles("/tmp/p.db"))
}
