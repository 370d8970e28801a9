// Package recordstore persists the harvested corpus as a pretty-printed
// JSON array, rewritten in full on every write.
package recordstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"tg_harvest/internal/model"
)

// CorruptError reports a corpus file that exists but cannot be decoded.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt corpus %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// Store is a JSON corpus file.
type Store struct {
	path string
}

const defaultFileMode os.FileMode = 0o644

// New creates a Store backed by the file at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Read loads the whole corpus. A missing or blank file yields an empty
// corpus; anything that is not a JSON array of records is a *CorruptError.
func (s *Store) Read() ([]model.Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []model.Record{}, nil
	}
	if data[0] != '[' {
		return nil, &CorruptError{Path: s.path, Err: errors.New("top level is not an array")}
	}

	var records []model.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &CorruptError{Path: s.path, Err: err}
	}
	if records == nil {
		records = []model.Record{}
	}
	return records, nil
}

// Write replaces the corpus with records. The data is written to a
// temporary file in the same directory and renamed over the target, so
// the previous corpus survives a crash mid-write.
func (s *Store) Write(records []model.Record) error {
	if records == nil {
		records = []model.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode corpus: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := tmp.Chmod(s.fileMode()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", s.path, err)
	}
	return nil
}

// fileMode keeps the permissions of an existing corpus file.
func (s *Store) fileMode() os.FileMode {
	if fi, err := os.Stat(s.path); err == nil {
		return fi.Mode().Perm()
	}
	return defaultFileMode
}
