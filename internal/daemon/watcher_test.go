package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/nightlock/internal/state"
)

func newTestWatcher(t *testing.T) (*StateWatcher, *state.Store) {
	t.Helper()
	store, err := state.NewStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	w, err := NewStateWatcher(store)
	require.NoError(t, err)
	w.debounceTime = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() {
		w.Stop()
		cancel()
	})
	return w, store
}

func TestStateWatcher_RepairsTamperedFile(t *testing.T) {
	_, store := newTestWatcher(t)

	require.NoError(t, store.Update(func(s *state.PersistedState) {
		s.BlockStartMinutes = 90
	}))

	require.NoError(t, os.WriteFile(store.Path(), []byte("garbage"), 0o600))

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(store.Path())
		return err == nil && string(data) != "garbage"
	}, 3*time.Second, 20*time.Millisecond, "tampered file rewritten from cache")

	require.Equal(t, 90, store.Snapshot().BlockStartMinutes)
}

func TestStateWatcher_RecreatesDeletedFile(t *testing.T) {
	_, store := newTestWatcher(t)

	require.NoError(t, os.Remove(store.Path()))

	require.Eventually(t, func() bool {
		_, err := os.Stat(store.Path())
		return err == nil
	}, 3*time.Second, 20*time.Millisecond, "deleted file recreated")
}

func TestStateWatcher_IgnoresOwnRewrites(t *testing.T) {
	_, store := newTestWatcher(t)

	require.NoError(t, store.Update(func(s *state.PersistedState) {
		s.BlockEndMinutes = 300
	}))

	// Give the debounced check time to run; the intact file must survive.
	time.Sleep(200 * time.Millisecond)
	repaired, err := store.VerifyOnDisk()
	require.NoError(t, err)
	require.False(t, repaired)
	require.Equal(t, 300, store.Snapshot().BlockEndMinutes)
}
