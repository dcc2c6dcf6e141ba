package security

import (
	"time"

	"git.home.luguber.info/inful/nightlock/internal/errors"
	"git.home.luguber.info/inful/nightlock/internal/state"
)

// RecoveryDelay is how long a forgotten-PIN recovery waits before wiping.
const RecoveryDelay = 48 * time.Hour

// InitiateRecovery starts the 48-hour delayed PIN wipe. Returns a state
// conflict if a recovery is already pending.
func (m *Manager) InitiateRecovery() (time.Time, error) {
	var conflict error
	expires := m.clock.Now().Add(RecoveryDelay)

	err := m.store.Update(func(s *state.PersistedState) {
		if s.RecoveryActive {
			conflict = errors.StateError("recovery already active")
			return
		}
		s.RecoveryActive = true
		s.RecoveryExpiresAt = &expires
	})
	if err != nil {
		return time.Time{}, err
	}
	if conflict != nil {
		return time.Time{}, conflict
	}
	return expires, nil
}

// CancelRecovery forces the recovery overlay back to inactive. Always
// succeeds, also when nothing was pending.
func (m *Manager) CancelRecovery() error {
	return m.store.Update(func(s *state.PersistedState) {
		s.RecoveryActive = false
		s.RecoveryExpiresAt = nil
	})
}

// RecoveryTick advances the recovery overlay. When an active recovery has
// reached its expiry the PIN is wiped and the overlay deactivates, and
// completed is reported true exactly once for that expiry. A malformed
// active-without-expiry state self-heals to inactive.
func (m *Manager) RecoveryTick() (completed bool, err error) {
	snap := m.store.Snapshot()
	if !snap.RecoveryActive {
		return false, nil
	}

	now := m.clock.Now()
	err = m.store.Update(func(s *state.PersistedState) {
		if !s.RecoveryActive {
			return
		}
		if s.RecoveryExpiresAt == nil {
			s.RecoveryActive = false
			return
		}
		if now.Before(*s.RecoveryExpiresAt) {
			return
		}
		clearPinLocked(s)
		s.RecoveryActive = false
		s.RecoveryExpiresAt = nil
		completed = true
	})
	return completed, err
}
