package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/nightlock/internal/audit"
	"git.home.luguber.info/inful/nightlock/internal/blocker"
	"git.home.luguber.info/inful/nightlock/internal/clock"
	"git.home.luguber.info/inful/nightlock/internal/metrics"
	"git.home.luguber.info/inful/nightlock/internal/security"
	"git.home.luguber.info/inful/nightlock/internal/state"
	"git.home.luguber.info/inful/nightlock/internal/unlock"
)

type loopFixture struct {
	loop     *controlLoop
	store    *state.Store
	clk      *clock.FakeClock
	launcher *blocker.FakeLauncher
	security *security.Manager
	unlock   *unlock.Manager
	audit    *audit.Log
	events   chan SessionEvent
}

// nighttime falls inside the default 01:00-07:00 block window.
var nighttime = time.Date(2026, 1, 10, 2, 0, 0, 0, time.Local)

func newLoopFixture(t *testing.T) *loopFixture {
	t.Helper()
	dir := t.TempDir()

	store, err := state.NewStore(filepath.Join(dir, "state.json"))
	require.NoError(t, err)

	exe := filepath.Join(dir, "nightlock-blocker")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755))

	clk := clock.NewFakeClock(nighttime)
	engine := clock.NewEngine(store, clk)
	launcher := &blocker.FakeLauncher{}

	auditLog, err := audit.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = auditLog.Close() })

	f := &loopFixture{
		store:    store,
		clk:      clk,
		launcher: launcher,
		security: security.NewManager(store, clk),
		unlock:   unlock.NewManager(store, engine),
		audit:    auditLog,
		events:   make(chan SessionEvent, 1),
	}
	f.loop = &controlLoop{
		interval: 5 * time.Second,
		clock:    clk,
		engine:   engine,
		security: f.security,
		unlock:   f.unlock,
		blocker:  blocker.NewSupervisor(launcher, clk, []string{exe}, "", nil),
		auditLog: auditLog,
		recorder: metrics.NoopRecorder{},
		events:   f.events,
	}
	return f
}

func TestTick_LaunchesBlockerDuringWindow(t *testing.T) {
	f := newLoopFixture(t)

	f.loop.tick(context.Background())
	require.Equal(t, 1, f.launcher.SessionCalls)
	require.Equal(t, 1, f.launcher.LiveCount())
}

func TestTick_KillsBlockerOutsideWindow(t *testing.T) {
	f := newLoopFixture(t)

	f.loop.tick(context.Background())
	require.Equal(t, 1, f.launcher.LiveCount())

	// 12:00 is well outside 01:00-07:00.
	f.clk.Set(time.Date(2026, 1, 10, 12, 0, 0, 0, time.Local))
	f.loop.tick(context.Background())
	require.Zero(t, f.launcher.LiveCount())
}

func TestTick_TempUnlockSuppressesBlocker(t *testing.T) {
	f := newLoopFixture(t)

	_, err := f.unlock.Grant(unlock.FifteenMinutes)
	require.NoError(t, err)

	f.loop.tick(context.Background())
	require.Zero(t, f.launcher.SessionCalls, "no launch while temp unlock is active")

	// Expiry brings blocking back.
	f.clk.Advance(16 * time.Minute)
	f.loop.tick(context.Background())
	require.Equal(t, 1, f.launcher.LiveCount())
}

func TestTick_CompletesRecoveryAndAudits(t *testing.T) {
	f := newLoopFixture(t)

	require.NoError(t, f.security.SetPin("1234"))
	_, err := f.security.InitiateRecovery()
	require.NoError(t, err)

	f.loop.tick(context.Background())
	require.False(t, f.store.Snapshot().IsSetupMode(), "PIN still set before expiry")

	f.clk.Advance(49 * time.Hour)
	f.loop.tick(context.Background())
	require.True(t, f.store.Snapshot().IsSetupMode(), "PIN wiped after 48h")

	n, err := f.audit.CountSince(context.Background(), audit.EventRecoveryCompleted, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRun_SessionEventTriggersReconcile(t *testing.T) {
	f := newLoopFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Long interval so only the session event can cause the launch after
	// the initial tick.
	f.loop.interval = time.Hour

	// Outside the window at first: the initial tick launches nothing.
	f.clk.Set(time.Date(2026, 1, 10, 12, 0, 0, 0, time.Local))
	done := make(chan struct{})
	go func() {
		f.loop.run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, f.launcher.LiveCount())

	// Window opens while the loop sleeps; a session event picks it up.
	f.clk.Set(nighttime.Add(24 * time.Hour))
	f.events <- SessionEvent{Reason: ReasonLogon, At: f.clk.Now()}

	require.Eventually(t, func() bool {
		return f.launcher.LiveCount() == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
