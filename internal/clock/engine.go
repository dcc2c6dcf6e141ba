package clock

import (
	"time"

	"git.home.luguber.info/inful/nightlock/internal/state"
)

// Engine evaluates trusted time and the block-window predicate against the
// current persisted state. It holds no state of its own; every query reads
// a fresh snapshot so a schedule or offset change takes effect immediately.
type Engine struct {
	store *state.Store
	clock Clock
}

// NewEngine creates a schedule engine over the given store and clock.
func NewEngine(store *state.Store, clk Clock) *Engine {
	return &Engine{store: store, clock: clk}
}

// TrustedNow returns system time adjusted by the persisted NTP and debug
// offsets. Recomputed on every call, never cached.
func (e *Engine) TrustedNow() time.Time {
	snap := e.store.Snapshot()
	return e.clock.Now().Add(snap.NTPOffset + snap.DebugOffset)
}

// IsWithinWindow reports whether minute-of-day m falls inside the window.
// A window with start <= end is a same-day range [start, end); start > end
// wraps past midnight: m >= start || m < end.
func IsWithinWindow(m, start, end int) bool {
	if start <= end {
		return m >= start && m < end
	}
	return m >= start || m < end
}

// ShouldBlock reports whether blocking should be active right now: trusted
// time inside the window and no active temporary unlock.
func (e *Engine) ShouldBlock() bool {
	snap := e.store.Snapshot()
	now := e.clock.Now().Add(snap.NTPOffset + snap.DebugOffset)

	if !IsWithinWindow(minuteOfDay(now), snap.BlockStartMinutes, snap.BlockEndMinutes) {
		return false
	}
	if snap.TempUnlockExpiresAt != nil && now.Before(*snap.TempUnlockExpiresAt) {
		return false
	}
	return true
}

// InWindow reports whether trusted time is inside the configured window,
// ignoring temporary unlocks.
func (e *Engine) InWindow() bool {
	snap := e.store.Snapshot()
	now := e.clock.Now().Add(snap.NTPOffset + snap.DebugOffset)
	return IsWithinWindow(minuteOfDay(now), snap.BlockStartMinutes, snap.BlockEndMinutes)
}

// BlockEndTime resolves the next absolute instant the block window ends.
// The end lands today when the current minute precedes the end minute and
// tomorrow otherwise; this disambiguation covers both same-day and
// overnight windows.
func (e *Engine) BlockEndTime() time.Time {
	snap := e.store.Snapshot()
	now := e.clock.Now().Add(snap.NTPOffset + snap.DebugOffset)

	end := time.Date(now.Year(), now.Month(), now.Day(),
		snap.BlockEndMinutes/60, snap.BlockEndMinutes%60, 0, 0, now.Location())
	if minuteOfDay(now) >= snap.BlockEndMinutes {
		end = end.AddDate(0, 0, 1)
	}
	return end
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
