// Package metrics defines the observability hooks the daemon emits and a
// Prometheus-backed implementation.
package metrics

// Recorder defines observability hooks for the daemon. Implementations may
// forward to Prometheus, OpenTelemetry, etc. All methods must be safe for
// the NoopRecorder default (allowing optional injection).
type Recorder interface {
	IncRequest(requestType, outcome string) // outcome: ok|error
	IncPinVerify(outcome string)            // outcome: valid|invalid|rate_limited|locked_out|setup_required
	IncBlockerLaunch(tier string)           // tier: session|direct|failed
	IncHealRepair(kind string)              // kind: binary|task|startup
	SetBlocking(active bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not
// configured).
type NoopRecorder struct{}

func (NoopRecorder) IncRequest(string, string) {}
func (NoopRecorder) IncPinVerify(string)       {}
func (NoopRecorder) IncBlockerLaunch(string)   {}
func (NoopRecorder) IncHealRepair(string)      {}
func (NoopRecorder) SetBlocking(bool)          {}
