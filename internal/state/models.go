package state

import "time"

// Default block window: 01:00 to 07:00.
const (
	DefaultBlockStartMinutes = 60
	DefaultBlockEndMinutes   = 420
)

// PersistedState is the single durable document the daemon owns. Optional
// fields are pointers with omitempty so absent stays absent across a
// serialize/deserialize round-trip.
//
// Invariants: PinHash and PinSalt are both present or both absent (absence
// defines setup mode); RecoveryExpiresAt is present iff RecoveryActive.
type PersistedState struct {
	PinHash []byte `json:"pin_hash,omitempty"`
	PinSalt []byte `json:"pin_salt,omitempty"`

	BlockStartMinutes int `json:"block_start_minutes"`
	BlockEndMinutes   int `json:"block_end_minutes"`

	// Offsets added to the system clock to produce trusted time.
	NTPOffset   time.Duration `json:"ntp_offset_ns"`
	DebugOffset time.Duration `json:"debug_offset_ns"`
	LastNTPSync *time.Time    `json:"last_ntp_sync,omitempty"`

	RecoveryActive    bool       `json:"recovery_active"`
	RecoveryExpiresAt *time.Time `json:"recovery_expires_at,omitempty"`

	FailedAttempts      int        `json:"failed_attempts"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastAttemptAt       *time.Time `json:"last_attempt_at,omitempty"`
	LockoutUntil        *time.Time `json:"lockout_until,omitempty"`

	TempUnlockExpiresAt *time.Time `json:"temp_unlock_expires_at,omitempty"`
}

// DefaultState returns the state a first run starts with: setup mode,
// 01:00-07:00 window, zero offsets.
func DefaultState() PersistedState {
	return PersistedState{
		BlockStartMinutes: DefaultBlockStartMinutes,
		BlockEndMinutes:   DefaultBlockEndMinutes,
	}
}

// IsSetupMode reports whether no PIN is configured.
func (s PersistedState) IsSetupMode() bool {
	return len(s.PinHash) == 0 || len(s.PinSalt) == 0
}

// Clone returns a deep copy so snapshot holders cannot alias the cached
// state through slices or pointers.
func (s PersistedState) Clone() PersistedState {
	c := s
	if s.PinHash != nil {
		c.PinHash = append([]byte(nil), s.PinHash...)
	}
	if s.PinSalt != nil {
		c.PinSalt = append([]byte(nil), s.PinSalt...)
	}
	c.LastNTPSync = cloneTime(s.LastNTPSync)
	c.RecoveryExpiresAt = cloneTime(s.RecoveryExpiresAt)
	c.LastAttemptAt = cloneTime(s.LastAttemptAt)
	c.LockoutUntil = cloneTime(s.LockoutUntil)
	c.TempUnlockExpiresAt = cloneTime(s.TempUnlockExpiresAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
