package selfheal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TaskTrigger classifies when a reconciliation entry fires.
type TaskTrigger string

const (
	TriggerInterval TaskTrigger = "interval"
	TriggerLogon    TaskTrigger = "logon"
	TriggerBoot     TaskTrigger = "boot"
)

// TaskSpec describes one scheduled reconciliation entry.
type TaskSpec struct {
	Name    string
	Trigger TaskTrigger
	// Interval applies to TriggerInterval only.
	Interval time.Duration
	// Command is what the entry invokes.
	Command string
}

// TaskRegistrar abstracts the OS scheduled-task facility. The production
// implementation materializes cron and autostart entries on disk; tests
// inject an in-memory fake.
type TaskRegistrar interface {
	Exists(name string) (bool, error)
	Create(spec TaskSpec) error
}

// expectedTasks is the fixed set of reconciliation entries: two staggered
// heartbeats, a logon trigger and a boot trigger, all invoking the
// watchdog script.
func expectedTasks(command string) []TaskSpec {
	return []TaskSpec{
		{Name: "nightlock-heartbeat-a", Trigger: TriggerInterval, Interval: 5 * time.Minute, Command: command},
		{Name: "nightlock-heartbeat-b", Trigger: TriggerInterval, Interval: 7 * time.Minute, Command: command},
		{Name: "nightlock-logon", Trigger: TriggerLogon, Command: command},
		{Name: "nightlock-boot", Trigger: TriggerBoot, Command: command},
	}
}

// FileRegistrar materializes tasks as cron.d fragments (interval and boot
// triggers) and an XDG autostart desktop entry (logon trigger).
type FileRegistrar struct {
	// TaskDir receives cron.d fragments, one file per task.
	TaskDir string
	// AutostartDir receives the logon .desktop entry.
	AutostartDir string
}

func (r *FileRegistrar) Exists(name string) (bool, error) {
	for _, path := range []string{
		filepath.Join(r.TaskDir, name),
		filepath.Join(r.AutostartDir, name+".desktop"),
	} {
		if _, err := os.Stat(path); err == nil {
			return true, nil
		} else if !os.IsNotExist(err) {
			return false, err
		}
	}
	return false, nil
}

func (r *FileRegistrar) Create(spec TaskSpec) error {
	switch spec.Trigger {
	case TriggerLogon:
		return r.createAutostart(spec)
	case TriggerInterval, TriggerBoot:
		return r.createCron(spec)
	default:
		return fmt.Errorf("unknown task trigger %q", spec.Trigger)
	}
}

func (r *FileRegistrar) createCron(spec TaskSpec) error {
	if err := os.MkdirAll(r.TaskDir, 0o755); err != nil {
		return err
	}

	var line string
	switch spec.Trigger {
	case TriggerBoot:
		line = fmt.Sprintf("@reboot root %s\n", spec.Command)
	default:
		minutes := int(spec.Interval / time.Minute)
		if minutes < 1 {
			minutes = 1
		}
		line = fmt.Sprintf("*/%d * * * * root %s\n", minutes, spec.Command)
	}
	return os.WriteFile(filepath.Join(r.TaskDir, spec.Name), []byte(line), 0o644)
}

func (r *FileRegistrar) createAutostart(spec TaskSpec) error {
	if err := os.MkdirAll(r.AutostartDir, 0o755); err != nil {
		return err
	}
	entry := fmt.Sprintf(`[Desktop Entry]
Type=Application
Name=%s
Exec=%s
X-GNOME-Autostart-enabled=true
`, spec.Name, spec.Command)
	return os.WriteFile(filepath.Join(r.AutostartDir, spec.Name+".desktop"), []byte(entry), 0o644)
}
