package unlock

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/nightlock/internal/clock"
	"git.home.luguber.info/inful/nightlock/internal/state"
)

func newManager(t *testing.T, now time.Time) (*Manager, *state.Store, *clock.FakeClock) {
	t.Helper()
	st, err := state.NewStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	clk := clock.NewFakeClock(now)
	engine := clock.NewEngine(st, clk)
	return NewManager(st, engine), st, clk
}

func TestGrant_FixedDurations(t *testing.T) {
	now := time.Date(2026, 1, 10, 2, 0, 0, 0, time.UTC)

	t.Run("fifteen minutes", func(t *testing.T) {
		m, _, _ := newManager(t, now)
		expires, err := m.Grant(FifteenMinutes)
		require.NoError(t, err)
		require.Equal(t, now.Add(15*time.Minute), expires)
		require.True(t, m.HasActive())
	})

	t.Run("one hour", func(t *testing.T) {
		m, _, _ := newManager(t, now)
		expires, err := m.Grant(OneHour)
		require.NoError(t, err)
		require.Equal(t, now.Add(time.Hour), expires)
	})

	t.Run("unknown duration rejected", func(t *testing.T) {
		m, _, _ := newManager(t, now)
		_, err := m.Grant(Duration("forever"))
		require.Error(t, err)
		require.False(t, m.HasActive())
	})
}

func TestGrant_RestOfPeriod(t *testing.T) {
	t.Run("inside the window runs to the window end", func(t *testing.T) {
		// 02:00, default window 01:00-07:00.
		now := time.Date(2026, 1, 10, 2, 0, 0, 0, time.UTC)
		m, _, _ := newManager(t, now)
		expires, err := m.Grant(RestOfPeriod)
		require.NoError(t, err)
		require.Equal(t, time.Date(2026, 1, 10, 7, 0, 0, 0, time.UTC), expires)
	})

	t.Run("outside the window falls back to one hour", func(t *testing.T) {
		now := time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC)
		m, _, _ := newManager(t, now)
		expires, err := m.Grant(RestOfPeriod)
		require.NoError(t, err)
		require.Equal(t, now.Add(time.Hour), expires)
	})
}

func TestTick_ClearsExpired(t *testing.T) {
	now := time.Date(2026, 1, 10, 2, 0, 0, 0, time.UTC)
	m, st, clk := newManager(t, now)

	_, err := m.Grant(FifteenMinutes)
	require.NoError(t, err)

	require.NoError(t, m.Tick())
	require.True(t, m.HasActive(), "unexpired unlock survives ticks")

	clk.Advance(16 * time.Minute)
	require.False(t, m.HasActive())
	require.NoError(t, m.Tick())
	require.Nil(t, st.Snapshot().TempUnlockExpiresAt, "tick clears the stored expiry")
}

func TestClear(t *testing.T) {
	now := time.Date(2026, 1, 10, 2, 0, 0, 0, time.UTC)
	m, st, _ := newManager(t, now)

	require.NoError(t, m.Clear(), "clear with nothing stored is a no-op")

	_, err := m.Grant(OneHour)
	require.NoError(t, err)
	require.NoError(t, m.Clear())
	require.Nil(t, st.Snapshot().TempUnlockExpiresAt)
	require.False(t, m.HasActive())
}
