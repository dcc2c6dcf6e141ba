package daemon

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/nightlock/internal/audit"
	"git.home.luguber.info/inful/nightlock/internal/blocker"
	"git.home.luguber.info/inful/nightlock/internal/clock"
	"git.home.luguber.info/inful/nightlock/internal/logfields"
	"git.home.luguber.info/inful/nightlock/internal/metrics"
	"git.home.luguber.info/inful/nightlock/internal/security"
	"git.home.luguber.info/inful/nightlock/internal/unlock"
)

// resumeGapFactor: a tick arriving this many intervals late means the
// machine was suspended, so the next reconcile is treated as a resume.
const resumeGapFactor = 3

// controlLoop is the daemon's single control thread. Each tick advances
// the time-based transitions (recovery, temp unlock) and reconciles the
// blocker process against the blocking decision.
type controlLoop struct {
	interval time.Duration
	clock    clock.Clock
	engine   *clock.Engine
	security *security.Manager
	unlock   *unlock.Manager
	blocker  *blocker.Supervisor
	auditLog *audit.Log
	recorder metrics.Recorder
	events   <-chan SessionEvent

	lastTick time.Time
}

func (l *controlLoop) run(ctx context.Context) {
	slog.Info("Control loop started", "interval", l.interval.String())
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	// Evaluate immediately rather than waiting out the first interval.
	l.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Control loop stopped")
			return
		case <-ticker.C:
			l.tick(ctx)
		case ev := <-l.events:
			slog.Info("Session change, re-evaluating", "reason", ev.Reason)
			l.reconcile(ctx)
		}
	}
}

func (l *controlLoop) tick(ctx context.Context) {
	now := l.clock.Now()
	if !l.lastTick.IsZero() && now.Sub(l.lastTick) > time.Duration(resumeGapFactor)*l.interval {
		slog.Info("Tick gap observed, treating as resume from sleep",
			"gap", now.Sub(l.lastTick).String())
	}
	l.lastTick = now

	completed, err := l.security.RecoveryTick()
	if err != nil {
		slog.Error("Recovery tick failed", logfields.Error(err))
	} else if completed {
		slog.Warn("Recovery period elapsed, PIN cleared")
		_ = l.auditLog.Record(ctx, audit.EventRecoveryCompleted, nil)
	}

	if err := l.unlock.Tick(); err != nil {
		slog.Error("Unlock tick failed", logfields.Error(err))
	}

	l.reconcile(ctx)
}

// reconcile drives the observed blocker state toward the decision: launch
// when blocking should be active, kill when it should not.
func (l *controlLoop) reconcile(ctx context.Context) {
	should := l.engine.ShouldBlock()
	l.recorder.SetBlocking(should)

	if should {
		l.blocker.LaunchIfNeeded(ctx)
		return
	}
	if l.blocker.Running() {
		slog.Info("Block window over, stopping blocker")
		l.blocker.Kill()
	}
}
