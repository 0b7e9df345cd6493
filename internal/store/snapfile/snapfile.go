// Package snapfile persists snapshots as a single JSON document on disk.
package snapfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"tribo.social/internal/obs"
	"tribo.social/internal/social"
	"tribo.social/internal/store"
)

// Store reads and writes one snapshot file. Saves go through a temp file and
// a rename so a crash mid-write never leaves a truncated snapshot behind.
type Store struct {
	path string
}

var _ store.Store = (*Store)(nil)

// New creates a file store at path. The file does not need to exist yet.
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the snapshot. A missing or unreadable file yields an empty
// snapshot: a fresh deployment and a corrupt save both start the service
// from a clean state, with a warning on the log.
func (s *Store) Load(ctx context.Context) (social.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return social.Snapshot{}, nil
	}
	if err != nil {
		s.warn("snapshot file unreadable, starting empty", err)
		return social.Snapshot{}, nil
	}
	var snap social.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.warn("snapshot file corrupt, starting empty", err)
		return social.Snapshot{}, nil
	}
	return snap, nil
}

// Save writes the snapshot atomically.
func (s *Store) Save(ctx context.Context, snap social.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("snapfile: encode: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("snapfile: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("snapfile: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("snapfile: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("snapfile: rename: %w", err)
	}
	return nil
}

func (s *Store) warn(msg string, err error) {
	obs.LogRequest(map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": "warn",
		"msg":   msg,
		"path":  s.path,
		"error": err.Error(),
	})
}
