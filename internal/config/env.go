package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// loadEnvFile loads environment variables from .env/.env.local files.
// It attempts each supported filename in order and stops at the first
// successfully parsed file. Existing process environment is not overwritten.
func loadEnvFile() {
	for _, envPath := range []string{".env", ".env.local"} {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err != nil {
			slog.Warn("Failed to load env file", "path", envPath, "error", err)
			continue
		}
		slog.Debug("Loaded environment variables", "path", envPath)
		return
	}
}

// applyEnvOverrides lets deployment scripts relocate the daemon without
// editing the settings file.
func (s *Settings) applyEnvOverrides() {
	if v := os.Getenv("NIGHTLOCK_DATA_DIR"); v != "" {
		s.DataDir = v
	}
	if v := os.Getenv("NIGHTLOCK_SOCKET"); v != "" {
		s.SocketPath = v
	}
	if v := os.Getenv("NIGHTLOCK_STATE_FILE"); v != "" {
		s.StateFile = v
	}
	if v := os.Getenv("NIGHTLOCK_NTP_SERVER"); v != "" {
		s.NTP.Server = v
	}
	if v := os.Getenv("NIGHTLOCK_METRICS_LISTEN"); v != "" {
		s.Metrics.Listen = v
		s.Metrics.Enabled = true
	}
}
