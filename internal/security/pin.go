// Package security implements the PIN state machine: slow hashing, rate
// limiting, lockout, and the delayed recovery wipe. All mutations go
// through the state store's Update so concurrent IPC workers serialize on
// its lock.
package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"git.home.luguber.info/inful/nightlock/internal/clock"
	"git.home.luguber.info/inful/nightlock/internal/errors"
	"git.home.luguber.info/inful/nightlock/internal/state"
)

const (
	// PinLength is the exact number of decimal digits a PIN must have.
	PinLength = 4

	// SaltSize and KeySize are the random salt and derived key lengths.
	SaltSize = 32
	KeySize  = 32

	// Iterations is the PBKDF2-SHA256 work factor.
	Iterations = 100_000

	// MaxAttemptsPerWindow failures inside AttemptWindow trigger rate
	// limiting; MaxConsecutiveFailures since the last success trigger a
	// LockoutDuration lockout.
	MaxAttemptsPerWindow   = 5
	AttemptWindow          = time.Minute
	MaxConsecutiveFailures = 10
	LockoutDuration        = 15 * time.Minute
)

// VerifyResult is the structured outcome of a PIN verification, carrying
// enough detail for front-ends to render countdowns.
type VerifyResult struct {
	Valid             bool
	SetupRequired     bool
	LockedOut         bool
	RateLimited       bool
	AttemptsRemaining int
	LockoutRemaining  time.Duration
}

// Manager drives the PIN state machine over the persisted state.
type Manager struct {
	store *state.Store
	clock clock.Clock
}

// NewManager creates a PIN security manager.
func NewManager(store *state.Store, clk clock.Clock) *Manager {
	return &Manager{store: store, clock: clk}
}

// ValidatePinFormat checks for exactly four decimal digits.
func ValidatePinFormat(pin string) error {
	if len(pin) != PinLength {
		return errors.ValidationError("pin must be exactly 4 digits")
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return errors.ValidationError("pin must contain only digits")
		}
	}
	return nil
}

// SetPin configures the initial PIN. Permitted only in setup mode.
func (m *Manager) SetPin(pin string) error {
	if err := ValidatePinFormat(pin); err != nil {
		return err
	}

	var conflict error
	err := m.store.Update(func(s *state.PersistedState) {
		if !s.IsSetupMode() {
			conflict = errors.StateError("pin already set, use change_pin")
			return
		}
		setPinLocked(s, pin)
	})
	if err != nil {
		return err
	}
	return conflict
}

// VerifyPin evaluates a candidate against the stored hash, advancing the
// rate-limit and lockout counters. The whole read-modify-write runs inside
// one store Update so concurrent attempts serialize.
func (m *Manager) VerifyPin(pin string) (VerifyResult, error) {
	var res VerifyResult
	now := m.clock.Now()

	err := m.store.Update(func(s *state.PersistedState) {
		res = verifyLocked(s, pin, now)
	})
	return res, err
}

// ChangePin verifies the current PIN and replaces it with a new one. The
// verification result is returned so callers can surface rate-limit and
// lockout detail; the PIN is only replaced when Valid.
func (m *Manager) ChangePin(current, newPin string) (VerifyResult, error) {
	if err := ValidatePinFormat(newPin); err != nil {
		return VerifyResult{}, err
	}

	var res VerifyResult
	now := m.clock.Now()
	err := m.store.Update(func(s *state.PersistedState) {
		res = verifyLocked(s, current, now)
		if res.Valid {
			setPinLocked(s, newPin)
		}
	})
	return res, err
}

// ClearPin unconditionally wipes the hash, salt and all counters,
// re-entering setup mode.
func (m *Manager) ClearPin() error {
	return m.store.Update(clearPinLocked)
}

func setPinLocked(s *state.PersistedState, pin string) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		// crypto/rand does not fail on any supported platform; a broken
		// entropy source is not survivable for a security component.
		panic(err)
	}
	s.PinSalt = salt
	s.PinHash = deriveKey(pin, salt)
	resetCountersLocked(s)
}

func clearPinLocked(s *state.PersistedState) {
	s.PinHash = nil
	s.PinSalt = nil
	resetCountersLocked(s)
}

func resetCountersLocked(s *state.PersistedState) {
	s.FailedAttempts = 0
	s.ConsecutiveFailures = 0
	s.LastAttemptAt = nil
	s.LockoutUntil = nil
}

func verifyLocked(s *state.PersistedState, pin string, now time.Time) VerifyResult {
	if s.IsSetupMode() {
		return VerifyResult{SetupRequired: true}
	}

	if s.LockoutUntil != nil && now.Before(*s.LockoutUntil) {
		return VerifyResult{
			LockedOut:        true,
			LockoutRemaining: s.LockoutUntil.Sub(now),
		}
	}

	// Rolling attempt window: once a minute passes since the last attempt
	// the short-horizon counter resets.
	if s.LastAttemptAt != nil && now.Sub(*s.LastAttemptAt) >= AttemptWindow {
		s.FailedAttempts = 0
	}

	if s.FailedAttempts >= MaxAttemptsPerWindow {
		return VerifyResult{RateLimited: true}
	}

	candidate := deriveKey(pin, s.PinSalt)
	if subtle.ConstantTimeCompare(candidate, s.PinHash) == 1 {
		s.FailedAttempts = 0
		s.ConsecutiveFailures = 0
		s.LockoutUntil = nil
		return VerifyResult{Valid: true, AttemptsRemaining: MaxAttemptsPerWindow}
	}

	s.FailedAttempts++
	s.ConsecutiveFailures++
	s.LastAttemptAt = &now

	res := VerifyResult{
		AttemptsRemaining: max(0, MaxAttemptsPerWindow-s.FailedAttempts),
	}

	if s.ConsecutiveFailures >= MaxConsecutiveFailures {
		until := now.Add(LockoutDuration)
		s.LockoutUntil = &until
		s.ConsecutiveFailures = 0
		res.LockedOut = true
		res.LockoutRemaining = LockoutDuration
	}
	return res
}

func deriveKey(pin string, salt []byte) []byte {
	return pbkdf2.Key([]byte(pin), salt, Iterations, KeySize, sha256.New)
}
