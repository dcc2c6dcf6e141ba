// Package blocker supervises the full-screen blocking-surface process:
// resolving its executable, launching it into the interactive session with
// a direct-launch fallback, and tearing it down when blocking ends.
package blocker

import "context"

// Process is a handle to a launched blocking-surface process.
type Process interface {
	Pid() int
	Alive() bool
	Kill() error
}

// Launcher starts the blocking surface. The production implementation
// crosses from the daemon's privileged context into the interactive user's
// session; the fallback starts the process in the daemon's own session.
// The tier order is the contract: session launch first, direct second.
type Launcher interface {
	LaunchInSession(ctx context.Context, path string) (Process, error)
	LaunchDirect(ctx context.Context, path string) (Process, error)
}
