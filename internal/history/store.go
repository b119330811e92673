package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"ai-nutritionist/internal/plan"
)

// History maps username -> plan id -> saved record. The whole mapping lives
// in one JSON document.
type History map[string]map[string]plan.Record

// Store owns the on-disk history document. Sessions hold independent
// in-memory snapshots; every save is a full rewrite, so the last writer wins.
type Store struct {
	path string
}

// NewStore creates a Store for the history file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the full history document. A missing file yields an empty
// history with no error; a malformed file yields an empty history plus the
// parse error so the caller can surface a non-fatal notice. Partial data is
// not salvaged.
func (s *Store) Load() (History, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return History{}, nil
		}
		return History{}, fmt.Errorf("failed to read history file: %w", err)
	}

	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return History{}, fmt.Errorf("failed to parse history file: %w", err)
	}
	if h == nil {
		h = History{}
	}
	return h, nil
}

// Save serializes the full mapping and overwrites the document entirely.
// A failed save leaves the previous file contents and the caller's in-memory
// state untouched.
func (s *Store) Save(h History) error {
	data, err := json.MarshalIndent(h, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	return nil
}
