package security

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/nightlock/internal/clock"
	"git.home.luguber.info/inful/nightlock/internal/errors"
	"git.home.luguber.info/inful/nightlock/internal/state"
)

func newManager(t *testing.T) (*Manager, *state.Store, *clock.FakeClock) {
	t.Helper()
	st, err := state.NewStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC))
	return NewManager(st, clk), st, clk
}

func TestValidatePinFormat(t *testing.T) {
	require.NoError(t, ValidatePinFormat("0000"))
	require.NoError(t, ValidatePinFormat("9137"))
	require.Error(t, ValidatePinFormat(""))
	require.Error(t, ValidatePinFormat("123"))
	require.Error(t, ValidatePinFormat("12345"))
	require.Error(t, ValidatePinFormat("12a4"))
	require.Error(t, ValidatePinFormat("１２３４")) // non-ASCII digits
}

func TestSetPin(t *testing.T) {
	t.Run("sets salt and hash, leaves setup mode", func(t *testing.T) {
		m, st, _ := newManager(t)
		require.NoError(t, m.SetPin("1234"))

		snap := st.Snapshot()
		require.False(t, snap.IsSetupMode())
		require.Len(t, snap.PinSalt, SaltSize)
		require.Len(t, snap.PinHash, KeySize)
	})

	t.Run("rejected outside setup mode", func(t *testing.T) {
		m, _, _ := newManager(t)
		require.NoError(t, m.SetPin("1234"))
		err := m.SetPin("5678")
		require.Error(t, err)
		require.True(t, errors.IsCategory(err, errors.CategoryState))
	})

	t.Run("rejects malformed pin", func(t *testing.T) {
		m, _, _ := newManager(t)
		err := m.SetPin("12")
		require.True(t, errors.IsCategory(err, errors.CategoryValidation))
	})
}

func TestVerifyPin_Basics(t *testing.T) {
	m, _, _ := newManager(t)

	t.Run("setup required before any pin is set", func(t *testing.T) {
		res, err := m.VerifyPin("1234")
		require.NoError(t, err)
		require.True(t, res.SetupRequired)
		require.False(t, res.Valid)
	})

	require.NoError(t, m.SetPin("1234"))

	t.Run("correct pin", func(t *testing.T) {
		res, err := m.VerifyPin("1234")
		require.NoError(t, err)
		require.True(t, res.Valid)
	})

	t.Run("wrong pin reports attempts remaining", func(t *testing.T) {
		res, err := m.VerifyPin("0000")
		require.NoError(t, err)
		require.False(t, res.Valid)
		require.Equal(t, 4, res.AttemptsRemaining)
	})
}

func TestVerifyPin_RateLimit(t *testing.T) {
	m, _, clk := newManager(t)
	require.NoError(t, m.SetPin("1234"))

	for i := 0; i < MaxAttemptsPerWindow; i++ {
		res, err := m.VerifyPin("0000")
		require.NoError(t, err)
		require.False(t, res.RateLimited, "attempt %d should still be evaluated", i+1)
		clk.Advance(time.Second)
	}

	// 6th attempt within the window is rate limited, hash never compared.
	res, err := m.VerifyPin("1234")
	require.NoError(t, err)
	require.True(t, res.RateLimited)
	require.False(t, res.Valid)

	// Once the window elapses since the last attempt the counter resets and
	// the next attempt is evaluated normally.
	clk.Advance(AttemptWindow)
	res, err = m.VerifyPin("1234")
	require.NoError(t, err)
	require.True(t, res.Valid)
}

func TestVerifyPin_Lockout(t *testing.T) {
	m, _, clk := newManager(t)
	require.NoError(t, m.SetPin("1234"))

	// 10 consecutive failures spread outside the rate-limit window so every
	// attempt reaches the hash comparison.
	var last VerifyResult
	for i := 0; i < MaxConsecutiveFailures; i++ {
		var err error
		last, err = m.VerifyPin("0000")
		require.NoError(t, err)
		clk.Advance(AttemptWindow + time.Second)
	}
	require.True(t, last.LockedOut)
	require.InDelta(t, (15 * time.Minute).Seconds(), last.LockoutRemaining.Seconds(), 1)

	t.Run("further attempts report remaining lockout", func(t *testing.T) {
		clk.Advance(5 * time.Minute)
		res, err := m.VerifyPin("1234")
		require.NoError(t, err)
		require.True(t, res.LockedOut)
		require.False(t, res.Valid)
		// ~10 minutes remain: 15 minus the 5 just advanced, minus the
		// minute-and-a-second consumed by the final failure advance.
		require.Greater(t, res.LockoutRemaining, 8*time.Minute)
		require.Less(t, res.LockoutRemaining, 10*time.Minute)
	})

	t.Run("lockout expires", func(t *testing.T) {
		clk.Advance(LockoutDuration)
		res, err := m.VerifyPin("1234")
		require.NoError(t, err)
		require.True(t, res.Valid)
	})
}

func TestVerifyPin_SuccessResetsConsecutiveFailures(t *testing.T) {
	m, st, clk := newManager(t)
	require.NoError(t, m.SetPin("1234"))

	// 9 consecutive failures, then a success before the 10th.
	for i := 0; i < MaxConsecutiveFailures-1; i++ {
		_, err := m.VerifyPin("0000")
		require.NoError(t, err)
		clk.Advance(AttemptWindow + time.Second)
	}
	require.Equal(t, MaxConsecutiveFailures-1, st.Snapshot().ConsecutiveFailures)

	res, err := m.VerifyPin("1234")
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Zero(t, st.Snapshot().ConsecutiveFailures)

	// The next failure starts the count from scratch, no lockout.
	res, err = m.VerifyPin("0000")
	require.NoError(t, err)
	require.False(t, res.LockedOut)
}

func TestChangePin(t *testing.T) {
	m, _, _ := newManager(t)
	require.NoError(t, m.SetPin("1234"))

	t.Run("wrong current pin leaves old pin in place", func(t *testing.T) {
		res, err := m.ChangePin("0000", "5678")
		require.NoError(t, err)
		require.False(t, res.Valid)

		ok, err := m.VerifyPin("1234")
		require.NoError(t, err)
		require.True(t, ok.Valid)
	})

	t.Run("correct current pin swaps to new", func(t *testing.T) {
		res, err := m.ChangePin("1234", "5678")
		require.NoError(t, err)
		require.True(t, res.Valid)

		old, err := m.VerifyPin("1234")
		require.NoError(t, err)
		require.False(t, old.Valid)

		fresh, err := m.VerifyPin("5678")
		require.NoError(t, err)
		require.True(t, fresh.Valid)
	})

	t.Run("malformed new pin rejected before verification", func(t *testing.T) {
		_, err := m.ChangePin("5678", "abc")
		require.True(t, errors.IsCategory(err, errors.CategoryValidation))
	})
}

func TestClearPin(t *testing.T) {
	m, st, _ := newManager(t)
	require.NoError(t, m.SetPin("1234"))
	_, err := m.VerifyPin("0000")
	require.NoError(t, err)

	require.NoError(t, m.ClearPin())
	snap := st.Snapshot()
	require.True(t, snap.IsSetupMode())
	require.Zero(t, snap.FailedAttempts)
	require.Zero(t, snap.ConsecutiveFailures)
	require.Nil(t, snap.LockoutUntil)
	require.Nil(t, snap.LastAttemptAt)
}

func TestSetPin_SaltsDiffer(t *testing.T) {
	m1, st1, _ := newManager(t)
	m2, st2, _ := newManager(t)
	require.NoError(t, m1.SetPin("1234"))
	require.NoError(t, m2.SetPin("1234"))
	require.NotEqual(t, st1.Snapshot().PinSalt, st2.Snapshot().PinSalt)
	require.NotEqual(t, st1.Snapshot().PinHash, st2.Snapshot().PinHash)
}
