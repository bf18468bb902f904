// Package store persists user-facing state as JSON documents on disk:
// preferences, synthesis history, favorites, and the voice clone registry.
//
// Each document is one file in the data directory, guarded by its own mutex
// and written via a temp file plus rename so a crash mid-write never leaves a
// torn document behind. This deliberately stays a single-user store; the
// OwnerUserID field on clones exists so a multi-user layer can be added
// without a data migration.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrOutOfRange is returned when an index-addressed operation points outside
// the list.
var ErrOutOfRange = errors.New("store: index out of range")

// Document filenames inside the data directory.
const (
	preferencesFile = "preferences.json"
	historyFile     = "history.json"
	favoritesFile   = "favorites.json"
	clonesFile      = "voice_clones.json"
)

// Store is the JSON document store. Safe for concurrent use.
type Store struct {
	dir string

	// one lock per document; coarse but the documents are small
	prefsMu   sync.Mutex
	historyMu sync.Mutex
	favsMu    sync.Mutex
	clonesMu  sync.Mutex
}

// New creates a Store rooted at dataDir, creating the directory if needed.
func New(dataDir string) (*Store, error) {
	if dataDir == "" {
		return nil, errors.New("store: dataDir must not be empty")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}
	return &Store{dir: dataDir}, nil
}

// load decodes the named document into v. A missing file leaves v untouched
// and returns false.
func (s *Store) load(name string, v any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("store: parse %s: %w", name, err)
	}
	return true, nil
}

// save writes v to the named document atomically: marshal, write a temp file
// in the same directory, rename over the target.
func (s *Store) save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", name, err)
	}

	target := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: rename %s: %w", name, err)
	}
	return nil
}
