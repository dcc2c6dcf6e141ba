// Package state owns the daemon's persisted state: one JSON document, one
// in-memory cached copy, one mutex. Every mutation is a read-modify-write
// under the lock and is written to disk before the lock is released, so no
// caller ever observes a state mid-mutation.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"git.home.luguber.info/inful/nightlock/internal/errors"
)

// Store is the single owner of PersistedState. The in-memory copy is
// authoritative: if the on-disk document is missing or unparsable it is
// rewritten from cache rather than trusted.
type Store struct {
	path   string
	mu     sync.Mutex
	cached PersistedState
}

// NewStore creates a store backed by the given file path, loading any
// existing document. A corrupt or missing file falls back to defaults and
// is rewritten; only an unwritable backing file is a hard error.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.WrapIO(err, "failed to create state directory")
	}

	st := &Store{path: path, cached: DefaultState()}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		slog.Info("No state file found, starting with defaults", "path", path)
	case err != nil:
		slog.Warn("State file unreadable, starting with defaults", "path", path, "error", err)
	default:
		var loaded PersistedState
		if uerr := json.Unmarshal(data, &loaded); uerr != nil {
			slog.Warn("State file corrupt, rewriting from defaults", "path", path, "error", uerr)
		} else {
			st.cached = loaded
		}
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.saveLocked(); err != nil {
		return nil, err
	}
	return st, nil
}

// Snapshot returns a consistent deep copy of the current state.
func (st *Store) Snapshot() PersistedState {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.cached.Clone()
}

// Update applies the mutator to the cached state and persists the result,
// all under the store lock. Concurrent callers serialize here; partial
// updates are never observable.
func (st *Store) Update(mutate func(*PersistedState)) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	mutate(&st.cached)
	return st.saveLocked()
}

// Reset replaces the state with defaults and persists.
func (st *Store) Reset() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.cached = DefaultState()
	return st.saveLocked()
}

// Save persists the current cached state.
func (st *Store) Save() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.saveLocked()
}

// Path returns the backing file path.
func (st *Store) Path() string {
	return st.path
}

// VerifyOnDisk checks that the on-disk document exists and parses. If not,
// it is rewritten from the cached copy. Returns whether a repair happened.
// This backs the periodic integrity cadence and the tamper watcher.
func (st *Store) VerifyOnDisk() (repaired bool, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	data, rerr := os.ReadFile(st.path)
	if rerr == nil {
		var parsed PersistedState
		if json.Unmarshal(data, &parsed) == nil {
			return false, nil
		}
	}

	slog.Warn("State file missing or corrupt, rewriting from cache", "path", st.path)
	if err := st.saveLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// saveLocked serializes and writes atomically via temp file + rename.
// Callers must hold st.mu.
func (st *Store) saveLocked() error {
	data, err := json.MarshalIndent(&st.cached, "", "  ")
	if err != nil {
		return errors.WrapIO(err, "failed to marshal state")
	}

	tempPath := st.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return errors.WrapIO(err, fmt.Sprintf("failed to write temporary state file %s", tempPath))
	}
	if err := os.Rename(tempPath, st.path); err != nil {
		return errors.WrapIO(err, "failed to replace state file")
	}
	return nil
}
