package storage

import (
	"errors"
	"io/fs"
	"path/filepath"
)

// Usage is the on-disk footprint of the progress database and index artifacts.
type Usage struct {
	DatabaseBytes int64 `json:"database_bytes"`
	IndexBytes    int64 `json:"index_bytes"`
}

// Total returns the combined size.
func (u Usage) Total() int64 { return u.DatabaseBytes + u.IndexBytes }

// MeasureUsage sizes the database (with its WAL companions) and the index directory.
func MeasureUsage(dbPath, indexDir string) (Usage, error) {
	db, err := DiskUsageBytes(DatabaseFiles(dbPath)...)
	if err != nil {
		return Usage{}, err
	}
	idx, err := DiskUsageBytes(indexDir)
	if err != nil {
		return Usage{}, err
	}
	return Usage{DatabaseBytes: db, IndexBytes: idx}, nil
}

// DatabaseFiles returns the database file and its WAL companions.
func DatabaseFiles(dbPath string) []string {
	if dbPath == "" || dbPath == ":memory:" {
		return nil
	}
	return []string{dbPath, dbPath + "-wal", dbPath + "-shm"}
}

// DiskUsageBytes sums the sizes of files under paths. Directories are walked;
// empty and missing paths count as zero.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, root := range paths {
		if root == "" {
			continue
		}
		err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return 0, err
		}
	}
	return total, nil
}
