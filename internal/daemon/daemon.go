// Package daemon wires the nightlock components together and runs the
// control loop: a fixed 5s tick advancing recovery and unlock state and
// reconciling the blocker process, with slower scheduled jobs for state
// integrity, self-healing and time sync.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/nightlock/internal/audit"
	"git.home.luguber.info/inful/nightlock/internal/blocker"
	"git.home.luguber.info/inful/nightlock/internal/clock"
	"git.home.luguber.info/inful/nightlock/internal/config"
	"git.home.luguber.info/inful/nightlock/internal/ipc"
	"git.home.luguber.info/inful/nightlock/internal/logfields"
	"git.home.luguber.info/inful/nightlock/internal/metrics"
	"git.home.luguber.info/inful/nightlock/internal/security"
	"git.home.luguber.info/inful/nightlock/internal/selfheal"
	"git.home.luguber.info/inful/nightlock/internal/state"
	"git.home.luguber.info/inful/nightlock/internal/unlock"
)

// Daemon owns every long-lived component and their lifecycle.
type Daemon struct {
	cfg      *config.Settings
	clock    clock.Clock
	store    *state.Store
	engine   *clock.Engine
	security *security.Manager
	unlock   *unlock.Manager
	blocker  *blocker.Supervisor
	heal     *selfheal.Supervisor
	auditLog *audit.Log
	recorder metrics.Recorder

	ipcServer     *ipc.Server
	metricsServer *metrics.Server
	scheduler     *Scheduler
	watcher       *StateWatcher

	sessionEvents chan SessionEvent
	loop          *controlLoop
	cancel        context.CancelFunc
}

// New builds a fully wired daemon from settings.
func New(cfg *config.Settings) (*Daemon, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", cfg.DataDir, err)
	}

	clk := clock.SystemClock{}

	store, err := state.NewStore(cfg.StateFile)
	if err != nil {
		return nil, err
	}

	auditLog, err := audit.Open(filepath.Join(cfg.DataDir, "audit.db"))
	if err != nil {
		// The audit trail is best-effort; a nil log records nothing.
		slog.Warn("Audit log unavailable", logfields.Error(err))
		auditLog = nil
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		reg := prom.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		recorder = metrics.NewPrometheusRecorder(reg)
		metricsServer = metrics.NewServer(cfg.Metrics.Listen, reg)
	}

	engine := clock.NewEngine(store, clk)
	sec := security.NewManager(store, clk)
	unl := unlock.NewManager(store, engine)

	launcher := &blocker.ExecLauncher{SessionUser: cfg.Blocker.SessionUser}
	sup := blocker.NewSupervisor(launcher, clk, cfg.Blocker.Candidates, cfg.Blocker.ProcessName, recorder)

	registrar := &selfheal.FileRegistrar{
		TaskDir:      cfg.Heal.TaskDir,
		AutostartDir: cfg.Heal.AutostartDir,
	}
	heal := selfheal.New(cfg.Heal, registrar, recorder, auditLog)

	dispatcher := ipc.NewDispatcher(store, engine, sec, unl, auditLog, recorder, clk)

	scheduler, err := NewScheduler()
	if err != nil {
		return nil, err
	}

	watcher, err := NewStateWatcher(store)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:           cfg,
		clock:         clk,
		store:         store,
		engine:        engine,
		security:      sec,
		unlock:        unl,
		blocker:       sup,
		heal:          heal,
		auditLog:      auditLog,
		recorder:      recorder,
		ipcServer:     ipc.NewServer(cfg.SocketPath, dispatcher),
		metricsServer: metricsServer,
		scheduler:     scheduler,
		watcher:       watcher,
		sessionEvents: make(chan SessionEvent, 1),
	}
	d.loop = &controlLoop{
		interval: cfg.Intervals.Tick,
		clock:    clk,
		engine:   engine,
		security: sec,
		unlock:   unl,
		blocker:  sup,
		auditLog: auditLog,
		recorder: recorder,
		events:   d.sessionEvents,
	}
	return d, nil
}

// Start brings every component up and launches the control loop. It
// returns once the daemon is running; cancel the context or call Stop to
// shut down.
func (d *Daemon) Start(ctx context.Context) error {
	ctx, d.cancel = context.WithCancel(ctx)

	if err := d.ipcServer.Start(ctx); err != nil {
		return err
	}

	if err := d.heal.Init(); err != nil {
		slog.Error("Self-heal snapshot failed", logfields.Error(err))
	}

	if err := d.scheduleJobs(ctx); err != nil {
		d.ipcServer.Stop()
		return err
	}
	d.scheduler.Start()

	if err := d.watcher.Start(ctx); err != nil {
		slog.Error("State watcher unavailable", logfields.Error(err))
	}

	if d.metricsServer != nil {
		d.metricsServer.Start()
	}

	// First time sync happens in the background so startup is not held
	// hostage by an unreachable NTP server.
	go d.syncTime(ctx)

	go d.loop.run(ctx)

	slog.Info("Daemon started",
		logfields.Path(d.cfg.SocketPath),
		"blocking", d.engine.ShouldBlock(),
		"setup_mode", d.store.Snapshot().IsSetupMode())
	return nil
}

// Stop shuts everything down and writes a final state save.
func (d *Daemon) Stop(ctx context.Context) {
	slog.Info("Daemon stopping")
	if d.cancel != nil {
		d.cancel()
	}

	d.ipcServer.Stop()
	_ = d.scheduler.Stop()
	d.watcher.Stop()
	if d.metricsServer != nil {
		_ = d.metricsServer.Stop(ctx)
	}

	if err := d.store.Save(); err != nil {
		slog.Error("Final state save failed", logfields.Error(err))
	}
	_ = d.auditLog.Close()
	slog.Info("Daemon stopped")
}

// Run starts the daemon and blocks until the context is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	// The parent context is already cancelled; use a fresh one for the
	// shutdown path.
	d.Stop(context.Background())
	return nil
}

func (d *Daemon) scheduleJobs(ctx context.Context) error {
	if err := d.scheduler.ScheduleEvery("state-integrity", d.cfg.Intervals.IntegrityCheck, func() {
		repaired, err := d.store.VerifyOnDisk()
		if err != nil {
			slog.Error("State integrity check failed", logfields.Error(err))
		} else if repaired {
			slog.Warn("State file repaired from cache")
		}
	}); err != nil {
		return err
	}

	if err := d.scheduler.ScheduleEvery("heal-pass", d.cfg.Intervals.HealPass, func() {
		d.heal.RunPass(ctx)
	}); err != nil {
		return err
	}

	return d.scheduler.ScheduleEvery("time-sync", d.cfg.Intervals.TimeSync, func() {
		d.syncTime(ctx)
	})
}

func (d *Daemon) syncTime(ctx context.Context) {
	if err := d.engine.SyncNTP(ctx, d.cfg.NTP.Server, d.cfg.NTP.Timeout); err != nil {
		slog.Warn("Time sync failed, keeping previous offset", logfields.Error(err))
	}
}
