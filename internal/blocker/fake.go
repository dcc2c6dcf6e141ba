package blocker

import (
	"context"
	"sync"

	"git.home.luguber.info/inful/nightlock/internal/errors"
)

// FakeProcess is an in-memory Process for tests.
type FakeProcess struct {
	mu    sync.Mutex
	pid   int
	alive bool
}

func (p *FakeProcess) Pid() int {
	return p.pid
}

func (p *FakeProcess) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

func (p *FakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive = false
	return nil
}

// Exit simulates the process dying on its own.
func (p *FakeProcess) Exit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive = false
}

// FakeLauncher records launch calls and can be told to fail either tier.
type FakeLauncher struct {
	mu sync.Mutex

	FailSession bool
	FailDirect  bool

	SessionCalls int
	DirectCalls  int
	Procs        []*FakeProcess

	nextPid int
}

func (l *FakeLauncher) LaunchInSession(_ context.Context, _ string) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.SessionCalls++
	if l.FailSession {
		return nil, errors.ProcessError("session launch refused")
	}
	return l.spawn(), nil
}

func (l *FakeLauncher) LaunchDirect(_ context.Context, _ string) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.DirectCalls++
	if l.FailDirect {
		return nil, errors.ProcessError("direct launch refused")
	}
	return l.spawn(), nil
}

func (l *FakeLauncher) spawn() *FakeProcess {
	l.nextPid++
	p := &FakeProcess{pid: 10000 + l.nextPid, alive: true}
	l.Procs = append(l.Procs, p)
	return p
}

// LiveCount reports how many fake processes are still alive.
func (l *FakeLauncher) LiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, p := range l.Procs {
		if p.Alive() {
			n++
		}
	}
	return n
}
