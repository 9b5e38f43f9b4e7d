package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type cursorEntry struct {
	LastProcessedBlock uint64 `json:"last_processed_block"`
	UpdatedAt          string `json:"updated_at"`
}

// FileCursorStore persists per-chain cursors to a JSON file. It backs
// csv-only runs, where no relational store is available.
type FileCursorStore struct {
	path string
	mu   sync.Mutex
}

// NewFileCursorStore builds a FileCursorStore at path.
func NewFileCursorStore(path string) *FileCursorStore {
	return &FileCursorStore{path: path}
}

// Load returns the chain's cursor; ok is false when no cursor exists.
func (s *FileCursorStore) Load(_ context.Context, chain string) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return 0, false, err
	}
	entry, ok := entries[chain]
	if !ok {
		return 0, false, nil
	}
	return entry.LastProcessedBlock, true, nil
}

// Save upserts the chain's cursor atomically via a temp file rename.
// The cursor never moves backwards; a save below the stored block is
// ignored.
func (s *FileCursorStore) Save(_ context.Context, chain string, blockNumber uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}
	if entry, ok := entries[chain]; ok && blockNumber < entry.LastProcessedBlock {
		return nil
	}
	entries[chain] = cursorEntry{
		LastProcessedBlock: blockNumber,
		UpdatedAt:          time.Now().UTC().Format(time.RFC3339Nano),
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cursor dir: %w", err)
		}
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal cursor: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write cursor tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename cursor: %w", err)
	}
	return nil
}

func (s *FileCursorStore) read() (map[string]cursorEntry, error) {
	entries := make(map[string]cursorEntry)

	stat, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, fmt.Errorf("stat cursor: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("cursor path is a directory")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read cursor: %w", err)
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse cursor: %w", err)
	}
	return entries, nil
}
