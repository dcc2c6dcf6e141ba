package config

import (
	"path/filepath"
	"time"
)

const defaultDataDir = "/var/lib/nightlock"

// Default returns the settings a fresh install runs with.
func Default() *Settings {
	s := &Settings{DataDir: defaultDataDir}
	s.applyDefaults()
	return s
}

// applyDefaults fills every zero-valued field so a partial settings file
// still yields a complete configuration.
func (s *Settings) applyDefaults() {
	if s.DataDir == "" {
		s.DataDir = defaultDataDir
	}
	if s.SocketPath == "" {
		s.SocketPath = filepath.Join(s.DataDir, "nightlock.sock")
	}
	if s.StateFile == "" {
		s.StateFile = filepath.Join(s.DataDir, "state.json")
	}

	if len(s.Blocker.Candidates) == 0 {
		s.Blocker.Candidates = []string{
			"/usr/local/bin/nightlock-blocker",
			"/usr/bin/nightlock-blocker",
			"/opt/nightlock/nightlock-blocker",
		}
	}
	if s.Blocker.ProcessName == "" {
		s.Blocker.ProcessName = "nightlock-blocker"
	}

	if s.Heal.BackupDir == "" {
		s.Heal.BackupDir = filepath.Join(s.DataDir, "backup")
	}
	if len(s.Heal.Binaries) == 0 {
		s.Heal.Binaries = map[string]string{
			"nightlockd":         "/usr/local/bin/nightlockd",
			"nightlock-blocker":  "/usr/local/bin/nightlock-blocker",
			"nightlock-settings": "/usr/local/bin/nightlock-settings",
		}
	}
	if s.Heal.TaskDir == "" {
		s.Heal.TaskDir = "/etc/cron.d"
	}
	if s.Heal.AutostartDir == "" {
		s.Heal.AutostartDir = "/etc/xdg/autostart"
	}
	if s.Heal.WatchdogScript == "" {
		s.Heal.WatchdogScript = "/usr/local/bin/nightlock-watchdog.sh"
	}
	if s.Heal.ServiceUnit == "" {
		s.Heal.ServiceUnit = "/etc/systemd/system/nightlockd.service"
	}

	if s.NTP.Server == "" {
		s.NTP.Server = "pool.ntp.org:123"
	}
	if s.NTP.Timeout <= 0 {
		s.NTP.Timeout = 5 * time.Second
	}

	if s.Metrics.Listen == "" {
		s.Metrics.Listen = "127.0.0.1:9437"
	}

	if s.Intervals.Tick <= 0 {
		s.Intervals.Tick = 5 * time.Second
	}
	if s.Intervals.IntegrityCheck <= 0 {
		s.Intervals.IntegrityCheck = 30 * time.Second
	}
	if s.Intervals.HealPass <= 0 {
		s.Intervals.HealPass = 5 * time.Minute
	}
	if s.Intervals.TimeSync <= 0 {
		s.Intervals.TimeSync = 6 * time.Hour
	}
}
