package config

import (
	"time"

	"git.home.luguber.info/inful/nightlock/internal/errors"
)

// Validate checks the settings for values the daemon cannot run with.
func (s *Settings) Validate() error {
	if s.DataDir == "" {
		return errors.ValidationError("data_dir must not be empty")
	}
	if s.SocketPath == "" {
		return errors.ValidationError("socket_path must not be empty")
	}
	if s.StateFile == "" {
		return errors.ValidationError("state_file must not be empty")
	}
	if len(s.Blocker.Candidates) == 0 {
		return errors.ValidationError("blocker.candidates must list at least one path")
	}
	if s.Blocker.ProcessName == "" {
		return errors.ValidationError("blocker.process_name must not be empty")
	}
	if s.Intervals.Tick < 100*time.Millisecond {
		return errors.ValidationError("intervals.tick is too small").
			WithContext("tick", s.Intervals.Tick.String())
	}
	if s.Intervals.IntegrityCheck < s.Intervals.Tick {
		return errors.ValidationError("intervals.integrity_check must not be shorter than the tick")
	}
	if s.Metrics.Enabled && s.Metrics.Listen == "" {
		return errors.ValidationError("metrics.listen required when metrics enabled")
	}
	return nil
}
