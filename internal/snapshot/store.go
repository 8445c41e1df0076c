// Package snapshot persists the last observed state of every monitored URL.
//
// Each URL maps to one JSON document named after digest.CacheKey(url).
// Writes go to a temporary file in the same directory and are renamed over
// the target, so readers never observe a half-written snapshot.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"pagewatch/internal/digest"
	"pagewatch/internal/model"
)

var (
	// ErrCorrupt is returned when a stored snapshot cannot be read or decoded.
	ErrCorrupt = errors.New("snapshot corrupt or unreadable")
	// ErrKeyCollision is returned when a stored snapshot belongs to another URL.
	ErrKeyCollision = errors.New("snapshot key collision")
)

// Store is a file-backed snapshot store.
type Store struct {
	dir string
}

// NewStore creates the cache directory if needed and returns a Store on it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory holding snapshot files.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file path used for url.
func (s *Store) Path(url string) string {
	return filepath.Join(s.dir, digest.CacheKey(url)+".json")
}

// Get returns the snapshot for url, or nil if none was stored.
func (s *Store) Get(url string) (*model.Snapshot, error) {
	data, err := os.ReadFile(s.Path(url))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrCorrupt, err)
	}
	if snap.Fingerprint == "" {
		return nil, fmt.Errorf("%w: missing fingerprint", ErrCorrupt)
	}
	if snap.URL != "" && snap.URL != url {
		return nil, fmt.Errorf("%w: %s is stored under the key of %s", ErrKeyCollision, snap.URL, url)
	}
	snap.URL = url
	return &snap, nil
}

// Put atomically replaces the snapshot for url.
func (s *Store) Put(url string, snap *model.Snapshot) error {
	stored := *snap
	stored.URL = url
	data, err := json.MarshalIndent(&stored, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	target := s.Path(url)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Delete removes the snapshot for url. Missing snapshots are not an error.
func (s *Store) Delete(url string) error {
	err := os.Remove(s.Path(url))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
