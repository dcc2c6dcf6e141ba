package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyConnID      = "conn_id"
	KeyRequestType = "request_type"
	KeyComponent   = "component"
	KeyDurationMS  = "duration_ms"
	KeyPath        = "path"
	KeyBinary      = "binary"
	KeyTask        = "task"
	KeyTier        = "tier"
	KeyPID         = "pid"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func ConnID(id string) slog.Attr       { return slog.String(KeyConnID, id) }
func RequestType(t string) slog.Attr   { return slog.String(KeyRequestType, t) }
func Component(c string) slog.Attr     { return slog.String(KeyComponent, c) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Binary(name string) slog.Attr     { return slog.String(KeyBinary, name) }
func Task(name string) slog.Attr       { return slog.String(KeyTask, name) }
func Tier(tier string) slog.Attr       { return slog.String(KeyTier, tier) }
func PID(pid int) slog.Attr            { return slog.Int(KeyPID, pid) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
