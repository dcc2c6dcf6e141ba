package blocker

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"git.home.luguber.info/inful/nightlock/internal/clock"
	"git.home.luguber.info/inful/nightlock/internal/logfields"
	"git.home.luguber.info/inful/nightlock/internal/metrics"
)

// launchThrottle suppresses repeat launch attempts; a crashing surface
// must not be respawned in a tight loop.
const launchThrottle = 500 * time.Millisecond

// Supervisor owns the blocking-surface process handle. LaunchIfNeeded and
// Kill are safe for concurrent use from the control loop and session-event
// handlers.
type Supervisor struct {
	launcher    Launcher
	clock       clock.Clock
	candidates  []string
	processName string
	recorder    metrics.Recorder

	mu          sync.Mutex
	proc        Process
	lastAttempt time.Time
}

// NewSupervisor creates a supervisor resolving the blocker executable from
// the ordered candidate paths.
func NewSupervisor(launcher Launcher, clk clock.Clock, candidates []string, processName string, recorder metrics.Recorder) *Supervisor {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Supervisor{
		launcher:    launcher,
		clock:       clk,
		candidates:  candidates,
		processName: processName,
		recorder:    recorder,
	}
}

// LaunchIfNeeded starts the blocking surface unless a launch attempt
// happened within the throttle window or the tracked process is still
// alive. Launch tiers: session launch, then direct launch; only total
// failure is logged.
func (s *Supervisor) LaunchIfNeeded(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if now.Sub(s.lastAttempt) < launchThrottle {
		return
	}
	if s.proc != nil {
		if s.proc.Alive() {
			return
		}
		s.proc = nil
	}
	s.lastAttempt = now

	path, ok := s.resolveExecutable()
	if !ok {
		slog.Warn("No blocker executable found", "candidates", strings.Join(s.candidates, ","))
		s.recorder.IncBlockerLaunch("failed")
		return
	}

	if proc, err := s.launcher.LaunchInSession(ctx, path); err == nil {
		s.proc = proc
		s.recorder.IncBlockerLaunch("session")
		slog.Info("Blocker launched in session", logfields.Path(path), logfields.PID(proc.Pid()))
		return
	}

	proc, err := s.launcher.LaunchDirect(ctx, path)
	if err != nil {
		s.recorder.IncBlockerLaunch("failed")
		slog.Error("Blocker launch failed on all tiers", logfields.Path(path), logfields.Error(err))
		return
	}
	s.proc = proc
	s.recorder.IncBlockerLaunch("direct")
	slog.Info("Blocker launched directly", logfields.Path(path), logfields.PID(proc.Pid()))
}

// Running reports whether the tracked process is confirmed alive, clearing
// the handle when it has exited.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return false
	}
	if !s.proc.Alive() {
		s.proc = nil
		return false
	}
	return true
}

// Kill terminates the tracked process and sweeps for orphaned processes
// matching the blocker's executable name. Safe to call when nothing runs.
func (s *Supervisor) Kill() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc != nil {
		if err := s.proc.Kill(); err != nil {
			slog.Warn("Failed to kill blocker", logfields.PID(s.proc.Pid()), logfields.Error(err))
		}
		s.proc = nil
	}
	s.killOrphans()
}

func (s *Supervisor) resolveExecutable() (string, bool) {
	for _, candidate := range s.candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// killOrphans scans the process table for stray blocker processes left by
// a previous daemon or respawned outside our handle.
func (s *Supervisor) killOrphans() {
	if s.processName == "" {
		return
	}
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return
	}
	self := os.Getpid()
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid == self {
			continue
		}
		comm, err := os.ReadFile(filepath.Join("/proc", entry.Name(), "comm"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(comm)) != s.processName {
			continue
		}
		if err := unix.Kill(pid, unix.SIGKILL); err == nil {
			slog.Info("Killed orphaned blocker process", logfields.PID(pid))
		}
	}
}
