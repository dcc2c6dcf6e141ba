package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, s.Intervals.Tick)
	require.Equal(t, 30*time.Second, s.Intervals.IntegrityCheck)
	require.Equal(t, 5*time.Minute, s.Intervals.HealPass)
	require.Equal(t, 6*time.Hour, s.Intervals.TimeSync)
	require.NotEmpty(t, s.Blocker.Candidates)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: "+dir+"\n"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, dir, s.DataDir)
	// Derived paths follow the overridden data dir.
	require.Equal(t, filepath.Join(dir, "state.json"), s.StateFile)
	require.Equal(t, filepath.Join(dir, "nightlock.sock"), s.SocketPath)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{not yaml"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("rejects tiny tick", func(t *testing.T) {
		s := Default()
		s.Intervals.Tick = time.Millisecond
		require.Error(t, s.Validate())
	})

	t.Run("rejects integrity check shorter than tick", func(t *testing.T) {
		s := Default()
		s.Intervals.Tick = time.Minute
		s.Intervals.IntegrityCheck = time.Second
		require.Error(t, s.Validate())
	})

	t.Run("rejects empty candidates", func(t *testing.T) {
		s := Default()
		s.Blocker.Candidates = nil
		require.Error(t, s.Validate())
	})
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NIGHTLOCK_SOCKET", "/tmp/override.sock")
	s, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, "/tmp/override.sock", s.SocketPath)
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, Init(path, false))
	require.Error(t, Init(path, false), "should refuse to overwrite")
	require.NoError(t, Init(path, true))

	s, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, s.Validate())
}
