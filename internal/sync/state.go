package sync

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rrdtools/rrdsync/internal/utils"
)

// StateStore is the durable record of the last successfully synced
// mtime for each tracked file, keyed by source-relative path. A key is
// present iff the engine believes that file exists and is synced as of
// that timestamp on the remote. Every mutation persists the whole map.
//
// The persisted form is a flat JSON object so operators can inspect
// and hand-edit it; an unreadable file degrades to an empty map and is
// never fatal.
type StateStore struct {
	path string

	mu    sync.Mutex
	state map[string]float64
}

func NewStateStore(path string) *StateStore {
	return &StateStore{
		path:  path,
		state: make(map[string]float64),
	}
}

// Load reads the persisted map. A missing, unreadable or corrupt file
// starts fresh; losing state only costs redundant transfers, so no
// failure here may take the daemon down.
func (s *StateStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("no prior sync state, starting fresh", "path", s.path)
		} else {
			slog.Warn("sync state unreadable, starting fresh", "path", s.path, "error", err)
		}
		s.state = make(map[string]float64)
		return nil
	}

	state := make(map[string]float64)
	if err := json.Unmarshal(data, &state); err != nil {
		slog.Warn("sync state unreadable, starting fresh", "path", s.path, "error", err)
		s.state = make(map[string]float64)
		return nil
	}

	s.state = state
	slog.Info("sync state loaded", "path", s.path, "entries", len(state))
	return nil
}

// Get returns the last synced mtime for a relative path.
func (s *StateStore) Get(relPath string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mtime, ok := s.state[relPath]
	return mtime, ok
}

// Set records a successful sync and persists the whole map.
func (s *StateStore) Set(relPath string, mtime float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[relPath] = mtime
	return s.persistLocked()
}

// Delete removes a path after a successful remote deletion and
// persists. Deleting an absent key is a no-op.
func (s *StateStore) Delete(relPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state[relPath]; !ok {
		return nil
	}
	delete(s.state, relPath)
	return s.persistLocked()
}

// Len reports the number of tracked paths.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state)
}

// persistLocked writes the full map atomically (temp file + rename).
// Callers must hold s.mu.
func (s *StateStore) persistLocked() error {
	if err := utils.EnsureParent(s.path); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close state file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// UnixMtime converts a modification time to float seconds, the
// precision the state file stores.
func UnixMtime(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
