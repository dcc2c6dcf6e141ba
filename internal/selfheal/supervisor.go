package selfheal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/nightlock/internal/audit"
	"git.home.luguber.info/inful/nightlock/internal/config"
	"git.home.luguber.info/inful/nightlock/internal/logfields"
	"git.home.luguber.info/inful/nightlock/internal/metrics"
)

// daemonBinary is the tracked-artifact key whose path the startup
// registration must point at.
const daemonBinary = "nightlockd"

// Supervisor runs the periodic self-heal pass. All repairs are idempotent;
// a failed repair is logged and retried on the next pass.
type Supervisor struct {
	cfg       config.HealSettings
	registrar TaskRegistrar
	recorder  metrics.Recorder
	auditLog  *audit.Log

	binaries []trackedBinary
}

// New builds a supervisor from settings. Call Init before the first pass.
func New(cfg config.HealSettings, registrar TaskRegistrar, recorder metrics.Recorder, auditLog *audit.Log) *Supervisor {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Supervisor{
		cfg:       cfg,
		registrar: registrar,
		recorder:  recorder,
		auditLog:  auditLog,
	}
}

// Init snapshots every tracked binary into the backup dir and records its
// content hash. A tracked binary that is absent at startup is skipped with
// a warning; it gets picked up by RefreshSnapshot once installed.
func (s *Supervisor) Init() error {
	if err := os.MkdirAll(s.cfg.BackupDir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	// Deterministic order keeps logs and tests stable.
	names := make([]string, 0, len(s.cfg.Binaries))
	for name := range s.cfg.Binaries {
		names = append(names, name)
	}
	sort.Strings(names)

	s.binaries = s.binaries[:0]
	for _, name := range names {
		primary := s.cfg.Binaries[name]
		backup := filepath.Join(s.cfg.BackupDir, name)

		hash, err := hashFile(primary)
		if err != nil {
			slog.Warn("Tracked binary not snapshotted", logfields.Binary(name), logfields.Error(err))
			continue
		}
		if err := copyFile(primary, backup, 0o755); err != nil {
			slog.Warn("Failed to back up tracked binary", logfields.Binary(name), logfields.Error(err))
			continue
		}
		s.binaries = append(s.binaries, trackedBinary{
			name:    name,
			primary: primary,
			backup:  backup,
			hash:    hash,
		})
		slog.Debug("Tracked binary snapshotted", logfields.Binary(name), "sha256", hash[:12])
	}
	return nil
}

// RefreshSnapshot re-records the snapshot for one tracked binary from its
// current primary copy. Used after an intentional upgrade.
func (s *Supervisor) RefreshSnapshot(name string) error {
	primary, ok := s.cfg.Binaries[name]
	if !ok {
		return fmt.Errorf("unknown tracked binary %q", name)
	}
	hash, err := hashFile(primary)
	if err != nil {
		return err
	}
	backup := filepath.Join(s.cfg.BackupDir, name)
	if err := copyFile(primary, backup, 0o755); err != nil {
		return err
	}

	for i := range s.binaries {
		if s.binaries[i].name == name {
			s.binaries[i].hash = hash
			return nil
		}
	}
	s.binaries = append(s.binaries, trackedBinary{name: name, primary: primary, backup: backup, hash: hash})
	return nil
}

// RunPass executes one full heal cycle: binaries, scheduled tasks, startup
// registration, service-definition export.
func (s *Supervisor) RunPass(ctx context.Context) {
	s.healBinaries(ctx)
	s.healTasks(ctx)
	s.healStartupRegistration(ctx)
	s.exportServiceDefinition()
}

func (s *Supervisor) healBinaries(ctx context.Context) {
	for _, bin := range s.binaries {
		current, err := hashFile(bin.primary)
		if err == nil && current == bin.hash {
			continue
		}

		if restoreErr := copyFile(bin.backup, bin.primary, 0o755); restoreErr != nil {
			slog.Error("Failed to restore tracked binary",
				logfields.Binary(bin.name), logfields.Path(bin.primary), logfields.Error(restoreErr))
			continue
		}
		s.recorder.IncHealRepair("binary")
		_ = s.auditLog.Record(ctx, audit.EventHealRestoredFile, map[string]any{
			"binary": bin.name,
			"path":   bin.primary,
		})
		slog.Warn("Restored tracked binary from backup",
			logfields.Binary(bin.name), logfields.Path(bin.primary))
	}
}

func (s *Supervisor) healTasks(ctx context.Context) {
	for _, spec := range expectedTasks(s.cfg.WatchdogScript) {
		exists, err := s.registrar.Exists(spec.Name)
		if err != nil {
			slog.Error("Failed to check scheduled task", logfields.Task(spec.Name), logfields.Error(err))
			continue
		}
		if exists {
			continue
		}

		if err := s.registrar.Create(spec); err != nil {
			slog.Error("Failed to recreate scheduled task", logfields.Task(spec.Name), logfields.Error(err))
			continue
		}
		s.recorder.IncHealRepair("task")
		_ = s.auditLog.Record(ctx, audit.EventHealRecreatedTask, map[string]any{
			"task":    spec.Name,
			"trigger": string(spec.Trigger),
		})
		slog.Warn("Recreated scheduled task", logfields.Task(spec.Name))
	}
}

// healStartupRegistration verifies the service unit exists and its
// ExecStart points at the daemon executable, rewriting it otherwise.
func (s *Supervisor) healStartupRegistration(ctx context.Context) {
	daemonPath, ok := s.cfg.Binaries[daemonBinary]
	if !ok || s.cfg.ServiceUnit == "" {
		return
	}

	data, err := os.ReadFile(s.cfg.ServiceUnit)
	if err == nil && strings.Contains(string(data), "ExecStart="+daemonPath) {
		return
	}

	if err := os.MkdirAll(filepath.Dir(s.cfg.ServiceUnit), 0o755); err != nil {
		slog.Error("Failed to create service unit directory", logfields.Error(err))
		return
	}
	if err := os.WriteFile(s.cfg.ServiceUnit, []byte(serviceDefinition(daemonPath)), 0o644); err != nil {
		slog.Error("Failed to rewrite startup registration", logfields.Path(s.cfg.ServiceUnit), logfields.Error(err))
		return
	}
	s.recorder.IncHealRepair("startup")
	_ = s.auditLog.Record(ctx, audit.EventHealRecreatedTask, map[string]any{
		"task": "startup_registration",
		"path": s.cfg.ServiceUnit,
	})
	slog.Warn("Rewrote startup registration", logfields.Path(s.cfg.ServiceUnit))
}

// exportServiceDefinition keeps a copy of the service unit in the backup
// dir so the watchdog script can restore the registration if it is ever
// deleted together with the unit file.
func (s *Supervisor) exportServiceDefinition() {
	if s.cfg.ServiceUnit == "" {
		return
	}
	dst := filepath.Join(s.cfg.BackupDir, filepath.Base(s.cfg.ServiceUnit))
	if err := copyFile(s.cfg.ServiceUnit, dst, 0o644); err != nil {
		slog.Debug("Service definition export skipped", logfields.Error(err))
	}
}

// serviceDefinition renders the daemon's systemd unit.
func serviceDefinition(daemonPath string) string {
	return fmt.Sprintf(`[Unit]
Description=Nightlock usage restriction daemon
After=network.target

[Service]
Type=simple
ExecStart=%s daemon
Restart=always
RestartSec=5

[Install]
WantedBy=multi-user.target
`, daemonPath)
}
