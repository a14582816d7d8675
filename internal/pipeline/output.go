package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MarshalScores renders the wallet -> score mapping as JSON with sorted keys,
// two-space indentation and a trailing newline.
func MarshalScores(scores map[string]int) ([]byte, error) {
	if scores == nil {
		scores = map[string]int{}
	}
	data, err := json.MarshalIndent(scores, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal scores: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteScores writes the score mapping to path atomically.
func WriteScores(path string, scores map[string]int) error {
	data, err := MarshalScores(scores)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

// WriteMetadata writes run metadata as indented JSON to path atomically.
func WriteMetadata(path string, meta RunMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	return WriteFileAtomic(path, append(data, '\n'))
}

// WriteFileAtomic writes data to a temp file in path's directory and renames it
// over path. On failure path is left untouched and the temp file is removed.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}
