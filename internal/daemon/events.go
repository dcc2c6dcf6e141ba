package daemon

import "time"

// SessionEvent is an out-of-band request to re-evaluate the blocking
// decision immediately instead of waiting for the next control tick.
// Production sources: the watchdog heartbeat hitting the daemon, and
// resume-from-sleep detection inside the loop itself.
type SessionEvent struct {
	Reason string
	At     time.Time
}

const (
	// ReasonLogon fires when an interactive session appears.
	ReasonLogon = "logon"
	// ReasonResume fires after a suspend gap is observed between ticks.
	ReasonResume = "resume"
	// ReasonHeartbeat fires when the watchdog script pings the daemon.
	ReasonHeartbeat = "heartbeat"
)

// NotifySessionChange queues a session event for the control loop. Never
// blocks; when an event is already pending the new one is dropped, the
// pending reconcile covers it.
func (d *Daemon) NotifySessionChange(reason string) {
	ev := SessionEvent{Reason: reason, At: d.clock.Now()}
	select {
	case d.sessionEvents <- ev:
	default:
	}
}
