package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// File types recorded for source stores.
const (
	TypeFiles     = "files"
	TypeFilesList = "files-list"
)

// SourceRecord is one entry of the source store manifest.
type SourceRecord struct {
	Path string `json:"path"`
	UUID string `json:"uuid"`
	Type string `json:"type"`
	Time string `json:"time"`
}

// QuestionRecord is one entry of the question manifest.
type QuestionRecord struct {
	Question string `json:"question"`
	UUID     string `json:"uuid"`
	Time     string `json:"time"`
}

// readManifest loads a JSON array manifest. A missing file is an empty
// manifest.
func readManifest[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var entries []T
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return entries, nil
}

// appendManifest adds entry to the manifest at path. The file is replaced
// atomically so readers never see a partial array.
func appendManifest[T any](path string, entry T) error {
	entries, err := readManifest[T](path)
	if err != nil {
		return err
	}
	entries = append(entries, entry)

	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create manifest temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace manifest %s: %w", path, err)
	}
	return nil
}
