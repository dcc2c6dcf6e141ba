// Package unlock manages time-boxed suspensions of blocking.
package unlock

import (
	"time"

	"git.home.luguber.info/inful/nightlock/internal/clock"
	"git.home.luguber.info/inful/nightlock/internal/errors"
	"git.home.luguber.info/inful/nightlock/internal/state"
)

// Duration names the unlock lengths a client may request.
type Duration string

const (
	FifteenMinutes Duration = "fifteen_minutes"
	OneHour        Duration = "one_hour"
	RestOfPeriod   Duration = "rest_of_period"
)

// Manager grants and expires temporary unlocks. Callers are responsible
// for PIN verification before granting.
type Manager struct {
	store  *state.Store
	engine *clock.Engine
}

// NewManager creates a temporary-unlock manager.
func NewManager(store *state.Store, engine *clock.Engine) *Manager {
	return &Manager{store: store, engine: engine}
}

// Grant computes an absolute expiry from trusted time and stores it.
// rest_of_period resolves to the current window's end; outside a window it
// falls back to one hour.
func (m *Manager) Grant(d Duration) (time.Time, error) {
	now := m.engine.TrustedNow()

	var expires time.Time
	switch d {
	case FifteenMinutes:
		expires = now.Add(15 * time.Minute)
	case OneHour:
		expires = now.Add(time.Hour)
	case RestOfPeriod:
		if m.engine.InWindow() {
			expires = m.engine.BlockEndTime()
		} else {
			expires = now.Add(time.Hour)
		}
	default:
		return time.Time{}, errors.ValidationError("unknown unlock duration").
			WithContext("duration", string(d))
	}

	err := m.store.Update(func(s *state.PersistedState) {
		s.TempUnlockExpiresAt = &expires
	})
	if err != nil {
		return time.Time{}, err
	}
	return expires, nil
}

// HasActive reports whether an unexpired unlock is stored.
func (m *Manager) HasActive() bool {
	snap := m.store.Snapshot()
	return snap.TempUnlockExpiresAt != nil && m.engine.TrustedNow().Before(*snap.TempUnlockExpiresAt)
}

// Tick clears an expired unlock. Invoked every control-loop iteration.
func (m *Manager) Tick() error {
	snap := m.store.Snapshot()
	if snap.TempUnlockExpiresAt == nil {
		return nil
	}
	if m.engine.TrustedNow().Before(*snap.TempUnlockExpiresAt) {
		return nil
	}
	return m.Clear()
}

// Clear removes any stored unlock unconditionally.
func (m *Manager) Clear() error {
	return m.store.Update(func(s *state.PersistedState) {
		s.TempUnlockExpiresAt = nil
	})
}
