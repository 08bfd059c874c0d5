package activity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store persists activity snapshots to a file on a durable volume, so the
// inactivity information survives launcher restarts.
//
// The on-disk format is a JSON object of fedid to RFC 3339 timestamp. Writes
// go through a temp file in the same directory followed by a rename, so a
// crash mid-write never leaves a torn snapshot for the next start to choke
// on.
type Store struct {
	path string
}

// NewStore creates a snapshot store at the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the snapshot file location.
func (s *Store) Path() string {
	return s.path
}

// Write overwrites the snapshot file with the given entries.
func (s *Store) Write(entries map[string]time.Time) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode activity snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}
	return nil
}

// Load reads the snapshot file. A missing file is not an error: it means no
// previous launcher wrote one, and the caller continues with an empty map.
func (s *Store) Load() (map[string]time.Time, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]time.Time{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	entries := map[string]time.Time{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot file: %w", err)
	}
	return entries, nil
}
