// Package config loads and validates the operator-editable daemon settings.
// These are distinct from the persisted runtime state (internal/state): the
// settings file describes paths, intervals and listeners; the state file
// holds the PIN hash, schedule and counters the daemon mutates at runtime.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the top-level daemon configuration.
type Settings struct {
	// DataDir is the directory holding the state file, audit log and backups.
	DataDir string `yaml:"data_dir"`

	// SocketPath is the unix socket the IPC listener binds.
	SocketPath string `yaml:"socket_path"`

	// StateFile is the persisted state JSON document.
	StateFile string `yaml:"state_file"`

	Blocker   BlockerSettings  `yaml:"blocker"`
	Heal      HealSettings     `yaml:"heal"`
	NTP       NTPSettings      `yaml:"ntp"`
	Metrics   MetricsSettings  `yaml:"metrics"`
	Intervals IntervalSettings `yaml:"intervals"`
}

// BlockerSettings configures the blocking-surface supervisor.
type BlockerSettings struct {
	// Candidates is the ordered list of install locations to resolve the
	// blocker executable from.
	Candidates []string `yaml:"candidates"`

	// ProcessName is the executable name used for the orphan sweep on Kill.
	ProcessName string `yaml:"process_name"`

	// SessionUser optionally pins the interactive user to launch into.
	// Empty means resolve the active session at launch time.
	SessionUser string `yaml:"session_user,omitempty"`
}

// HealSettings configures the self-healing supervisor.
type HealSettings struct {
	// BackupDir receives last-known-good copies of the tracked binaries
	// and the exported service definition.
	BackupDir string `yaml:"backup_dir"`

	// Binaries maps tracked-artifact name to its primary install path.
	Binaries map[string]string `yaml:"binaries"`

	// TaskDir is where scheduled reconciliation entries are materialized.
	TaskDir string `yaml:"task_dir"`

	// AutostartDir receives the logon-trigger entry.
	AutostartDir string `yaml:"autostart_dir"`

	// WatchdogScript is the command the reconciliation entries invoke.
	WatchdogScript string `yaml:"watchdog_script"`

	// ServiceUnit is the daemon's startup-registration file.
	ServiceUnit string `yaml:"service_unit"`
}

// NTPSettings configures trusted-time synchronization.
type NTPSettings struct {
	Server  string        `yaml:"server"`
	Timeout time.Duration `yaml:"timeout"`
}

// MetricsSettings configures the optional Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// IntervalSettings holds the control-loop cadences. They are configurable
// mainly so tests and the debug console can shrink them.
type IntervalSettings struct {
	Tick           time.Duration `yaml:"tick"`
	IntegrityCheck time.Duration `yaml:"integrity_check"`
	HealPass       time.Duration `yaml:"heal_pass"`
	TimeSync       time.Duration `yaml:"time_sync"`
}

// Load reads the settings file, applies defaults, environment overrides and
// validation. A missing file yields pure defaults rather than an error so
// the daemon can start on a fresh machine.
func Load(path string) (*Settings, error) {
	loadEnvFile()

	s := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}

	s.applyDefaults()
	s.applyEnvOverrides()

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Init writes a default settings file. Refuses to overwrite unless force.
func Init(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("settings file %s already exists (use --force to overwrite)", path)
		}
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal default settings: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create settings directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}
