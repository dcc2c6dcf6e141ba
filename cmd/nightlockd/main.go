package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/nightlock/internal/config"
	"git.home.luguber.info/inful/nightlock/internal/daemon"
	"git.home.luguber.info/inful/nightlock/internal/ipc"
)

var CLI struct {
	Config  string `short:"c" help:"Settings file path" default:"/etc/nightlock/settings.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Daemon struct{} `cmd:"" help:"Run the control daemon"`

	Init struct {
		Force bool `help:"Overwrite an existing settings file"`
	} `cmd:"" help:"Write a default settings file"`

	Status struct {
		Socket string `short:"s" help:"Socket path override"`
	} `cmd:"" help:"Show the daemon's current state"`

	Console struct {
		Socket string `short:"s" help:"Socket path override"`
	} `cmd:"" help:"Interactive raw-protocol console (one JSON request per line)"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	switch ctx.Command() {
	case "daemon":
		cfg, err := config.Load(CLI.Config)
		if err != nil {
			slog.Error("Failed to load settings", "error", err)
			os.Exit(1)
		}
		if err := runDaemon(cfg); err != nil {
			slog.Error("Daemon failed", "error", err)
			os.Exit(1)
		}
	case "init":
		if err := config.Init(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("Init failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Settings written to %s\n", CLI.Config)
	case "status":
		if err := runStatus(socketPath(CLI.Status.Socket)); err != nil {
			slog.Error("Status failed", "error", err)
			os.Exit(1)
		}
	case "console":
		if err := runConsole(socketPath(CLI.Console.Socket)); err != nil {
			slog.Error("Console failed", "error", err)
			os.Exit(1)
		}
	}
}

// socketPath resolves an explicit override, falling back to the settings
// file and finally to the built-in default.
func socketPath(override string) string {
	if override != "" {
		return override
	}
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return config.Default().SocketPath
	}
	return cfg.SocketPath
}

func runDaemon(cfg *config.Settings) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := daemon.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}
	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("daemon error: %w", err)
	}

	<-ctx.Done()
	slog.Info("Shutdown signal received, stopping daemon...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	d.Stop(stopCtx)
	return nil
}

func runStatus(socket string) error {
	client, err := ipc.Dial(socket)
	if err != nil {
		return fmt.Errorf("daemon not reachable on %s: %w", socket, err)
	}
	defer client.Close()

	st, err := client.GetState()
	if err != nil {
		return err
	}

	fmt.Printf("blocking:        %v\n", st.IsBlocking)
	fmt.Printf("setup mode:      %v\n", st.IsSetupMode)
	fmt.Printf("block window:    %s - %s\n",
		formatMinute(st.BlockStartMinutes), formatMinute(st.BlockEndMinutes))
	fmt.Printf("trusted time:    %s\n", st.TrustedTimeUTC.Local().Format(time.RFC3339))
	if st.BlockEndsAtLocal != nil {
		fmt.Printf("block ends at:   %s\n", st.BlockEndsAtLocal.Format(time.RFC3339))
	}
	if st.TempUnlockActive && st.TempUnlockExpiresUTC != nil {
		fmt.Printf("temp unlock:     until %s\n", st.TempUnlockExpiresUTC.Local().Format(time.RFC3339))
	}
	if st.RecoveryActive && st.RecoveryExpiresUTC != nil {
		fmt.Printf("recovery:        completes %s\n", st.RecoveryExpiresUTC.Local().Format(time.RFC3339))
	}
	if st.IsLockedOut && st.LockoutUntilUTC != nil {
		fmt.Printf("locked out:      until %s\n", st.LockoutUntilUTC.Local().Format(time.RFC3339))
	}
	fmt.Printf("failed attempts: %d\n", st.FailedAttempts)
	return nil
}

func formatMinute(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// runConsole forwards stdin lines verbatim and prints each raw response.
// Meant for debugging the protocol, not for end users.
func runConsole(socket string) error {
	client, err := ipc.Dial(socket)
	if err != nil {
		return fmt.Errorf("daemon not reachable on %s: %w", socket, err)
	}
	defer client.Close()

	fmt.Fprintln(os.Stderr, `Connected. One JSON request per line, e.g. {"type":"get_state"}. Ctrl-D exits.`)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		resp, err := client.DoRaw([]byte(line))
		if err != nil {
			return err
		}
		fmt.Println(string(resp))
	}
	return scanner.Err()
}
