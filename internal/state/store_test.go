package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := NewStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	return st
}

func TestNewStore_FreshStartWritesDefaults(t *testing.T) {
	st := newTestStore(t)

	snap := st.Snapshot()
	require.True(t, snap.IsSetupMode())
	require.Equal(t, DefaultBlockStartMinutes, snap.BlockStartMinutes)
	require.Equal(t, DefaultBlockEndMinutes, snap.BlockEndMinutes)

	// Defaults must be on disk immediately.
	data, err := os.ReadFile(st.Path())
	require.NoError(t, err)
	var onDisk PersistedState
	require.NoError(t, json.Unmarshal(data, &onDisk))
	require.Equal(t, snap.BlockStartMinutes, onDisk.BlockStartMinutes)
}

func TestNewStore_CorruptFileFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{definitely not json"), 0o600))

	st, err := NewStore(path)
	require.NoError(t, err)
	require.True(t, st.Snapshot().IsSetupMode())

	// The corrupt file must have been rewritten.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk PersistedState
	require.NoError(t, json.Unmarshal(data, &onDisk))
}

func TestUpdate_PersistsImmediately(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.Update(func(s *PersistedState) {
		s.BlockStartMinutes = 1320
		s.BlockEndMinutes = 360
	}))

	reopened, err := NewStore(st.Path())
	require.NoError(t, err)
	snap := reopened.Snapshot()
	require.Equal(t, 1320, snap.BlockStartMinutes)
	require.Equal(t, 360, snap.BlockEndMinutes)
}

func TestUpdate_ConcurrentCallersSerialize(t *testing.T) {
	st := newTestStore(t)

	const workers = 16
	const perWorker = 25

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_ = st.Update(func(s *PersistedState) {
					s.FailedAttempts++
				})
			}
		}()
	}
	wg.Wait()

	require.Equal(t, workers*perWorker, st.Snapshot().FailedAttempts)
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Update(func(s *PersistedState) {
		s.PinHash = []byte{1, 2, 3}
		s.PinSalt = []byte{4, 5, 6}
	}))

	snap := st.Snapshot()
	snap.PinHash[0] = 99
	now := time.Now()
	snap.LockoutUntil = &now

	fresh := st.Snapshot()
	require.Equal(t, byte(1), fresh.PinHash[0])
	require.Nil(t, fresh.LockoutUntil)
}

func TestRoundTrip_AbsentOptionalFieldsStayAbsent(t *testing.T) {
	st := newTestStore(t)

	data, err := os.ReadFile(st.Path())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{
		"pin_hash", "pin_salt", "last_ntp_sync", "recovery_expires_at",
		"last_attempt_at", "lockout_until", "temp_unlock_expires_at",
	} {
		_, present := raw[key]
		require.False(t, present, "optional field %q should be absent", key)
	}
}

func TestRoundTrip_AllFieldsSurvive(t *testing.T) {
	st := newTestStore(t)

	at := time.Date(2026, 3, 14, 1, 59, 26, 0, time.UTC)
	expires := at.Add(48 * time.Hour)
	require.NoError(t, st.Update(func(s *PersistedState) {
		s.PinHash = []byte{0xde, 0xad}
		s.PinSalt = []byte{0xbe, 0xef}
		s.NTPOffset = -90 * time.Second
		s.DebugOffset = time.Hour
		s.LastNTPSync = &at
		s.RecoveryActive = true
		s.RecoveryExpiresAt = &expires
		s.FailedAttempts = 3
		s.ConsecutiveFailures = 7
		s.LastAttemptAt = &at
		s.LockoutUntil = &expires
		s.TempUnlockExpiresAt = &expires
	}))

	reopened, err := NewStore(st.Path())
	require.NoError(t, err)
	snap := reopened.Snapshot()
	require.Equal(t, []byte{0xde, 0xad}, snap.PinHash)
	require.Equal(t, -90*time.Second, snap.NTPOffset)
	require.Equal(t, time.Hour, snap.DebugOffset)
	require.True(t, snap.RecoveryActive)
	require.True(t, expires.Equal(*snap.RecoveryExpiresAt))
	require.Equal(t, 3, snap.FailedAttempts)
	require.Equal(t, 7, snap.ConsecutiveFailures)
	require.True(t, at.Equal(*snap.LastAttemptAt))
	require.True(t, expires.Equal(*snap.TempUnlockExpiresAt))
}

func TestVerifyOnDisk(t *testing.T) {
	t.Run("healthy file is untouched", func(t *testing.T) {
		st := newTestStore(t)
		repaired, err := st.VerifyOnDisk()
		require.NoError(t, err)
		require.False(t, repaired)
	})

	t.Run("deleted file is rewritten", func(t *testing.T) {
		st := newTestStore(t)
		require.NoError(t, st.Update(func(s *PersistedState) { s.BlockStartMinutes = 100 }))
		require.NoError(t, os.Remove(st.Path()))

		repaired, err := st.VerifyOnDisk()
		require.NoError(t, err)
		require.True(t, repaired)

		reopened, err := NewStore(st.Path())
		require.NoError(t, err)
		require.Equal(t, 100, reopened.Snapshot().BlockStartMinutes)
	})

	t.Run("corrupted file is rewritten", func(t *testing.T) {
		st := newTestStore(t)
		require.NoError(t, os.WriteFile(st.Path(), []byte("garbage"), 0o600))

		repaired, err := st.VerifyOnDisk()
		require.NoError(t, err)
		require.True(t, repaired)
	})
}

func TestReset(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Update(func(s *PersistedState) {
		s.PinHash = []byte{1}
		s.PinSalt = []byte{2}
		s.FailedAttempts = 4
	}))

	require.NoError(t, st.Reset())
	snap := st.Snapshot()
	require.True(t, snap.IsSetupMode())
	require.Zero(t, snap.FailedAttempts)
	require.Equal(t, DefaultBlockStartMinutes, snap.BlockStartMinutes)
}
