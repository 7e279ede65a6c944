package vector

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/mentoria/internal/models"
)

// LoadMetadata reads the metadata records of an artifact, one per vector row.
func LoadMetadata(path string) ([]models.DocumentChunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var chunks []models.DocumentChunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("parse metadata %s: %w", path, err)
	}
	return chunks, nil
}

// WriteMetadata writes metadata records as a JSON array. Directory is created if needed.
func WriteMetadata(path string, chunks []models.DocumentChunk) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}
	if chunks == nil {
		chunks = []models.DocumentChunk{}
	}
	data, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// WriteArtifact writes a flat index and its metadata into dir.
func WriteArtifact(dir string, dimensions int, vectors [][]float32, chunks []models.DocumentChunk) error {
	if err := WriteFlatIndex(filepath.Join(dir, IndexFileName), dimensions, vectors); err != nil {
		return err
	}
	return WriteMetadata(filepath.Join(dir, MetadataFileName), chunks)
}
