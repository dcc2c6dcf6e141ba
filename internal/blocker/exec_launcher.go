package blocker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"git.home.luguber.info/inful/nightlock/internal/errors"
)

// ExecLauncher starts the blocking surface with os/exec. LaunchInSession
// drops into the interactive user's uid/gid and points the process at that
// user's display; LaunchDirect starts it in the daemon's own context.
type ExecLauncher struct {
	// SessionUser pins the target user; empty resolves the active session
	// at launch time.
	SessionUser string
}

// LaunchInSession starts the executable inside the active interactive
// user's session.
func (l *ExecLauncher) LaunchInSession(ctx context.Context, path string) (Process, error) {
	username, uid, gid, err := l.resolveSessionUser()
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, path)
	cmd.Env = append(os.Environ(),
		"DISPLAY=:0",
		fmt.Sprintf("XAUTHORITY=%s", filepath.Join("/home", username, ".Xauthority")),
		fmt.Sprintf("XDG_RUNTIME_DIR=/run/user/%d", uid),
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
		Credential: &syscall.Credential{
			Uid: uid,
			Gid: gid,
		},
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.WrapProcess(err, "session launch failed").
			WithContext("path", path).
			WithContext("user", username)
	}
	return newExecProcess(cmd), nil
}

// LaunchDirect starts the executable in the daemon's own session.
func (l *ExecLauncher) LaunchDirect(ctx context.Context, path string) (Process, error) {
	cmd := exec.CommandContext(ctx, path)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return nil, errors.WrapProcess(err, "direct launch failed").WithContext("path", path)
	}
	return newExecProcess(cmd), nil
}

// resolveSessionUser finds the interactive user to launch as: the
// configured one, or the owner of the first active runtime directory.
func (l *ExecLauncher) resolveSessionUser() (username string, uid, gid uint32, err error) {
	if l.SessionUser != "" {
		u, lerr := user.Lookup(l.SessionUser)
		if lerr != nil {
			return "", 0, 0, errors.WrapProcess(lerr, "configured session user not found").
				WithContext("user", l.SessionUser)
		}
		return u.Username, parseID(u.Uid), parseID(u.Gid), nil
	}

	// /run/user holds one directory per logged-in uid.
	entries, rerr := os.ReadDir("/run/user")
	if rerr != nil {
		return "", 0, 0, errors.WrapProcess(rerr, "no interactive session found")
	}
	for _, entry := range entries {
		id, perr := strconv.Atoi(entry.Name())
		if perr != nil || id == 0 {
			continue
		}
		u, lerr := user.LookupId(entry.Name())
		if lerr != nil {
			continue
		}
		return u.Username, parseID(u.Uid), parseID(u.Gid), nil
	}
	return "", 0, 0, errors.ProcessError("no interactive session found")
}

func parseID(s string) uint32 {
	v, _ := strconv.ParseUint(s, 10, 32)
	return uint32(v)
}

// execProcess wraps a started exec.Cmd. A background Wait reaps the child
// so liveness probing with signal 0 stays accurate.
type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func newExecProcess(cmd *exec.Cmd) *execProcess {
	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()
	return p
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return unix.Kill(p.cmd.Process.Pid, 0) == nil
	}
}

func (p *execProcess) Kill() error {
	// Kill the whole session group; the surface may have spawned helpers.
	if err := unix.Kill(-p.cmd.Process.Pid, unix.SIGKILL); err != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}
