package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, cfg.GetReconnectDelay())
	assert.Equal(t, time.Hour, cfg.GetSessionIdle())
	assert.Equal(t, 50, cfg.Live.HistoryLength)
	assert.Equal(t, 25, cfg.Render.BreakThreshold)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	t.Setenv("ADMINTABLE_BACKEND_URL", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "console.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend_url: https://admin.example.com/api/
storage:
  driver: sqlite
  dsn: file:console.db
live:
  reconnect_delay: 2s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://admin.example.com/api/", cfg.BackendURL)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, 2*time.Second, cfg.GetReconnectDelay())
	assert.Equal(t, 50, cfg.Live.HistoryLength, "untouched keys keep defaults")
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Listen)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ADMINTABLE_BACKEND_URL", "http://backend:9000/")
	t.Setenv("ADMINTABLE_STORAGE_DRIVER", "postgres")
	t.Setenv("ADMINTABLE_STORAGE_DSN", "postgres://u@db/console")
	t.Setenv("ADMINTABLE_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://backend:9000/", cfg.BackendURL)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "postgres://u@db/console", cfg.Storage.DSN)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"bad backend":      func(c *Config) { c.BackendURL = "ftp://x" },
		"unknown driver":   func(c *Config) { c.Storage.Driver = "redis" },
		"sqlite needs dsn": func(c *Config) { c.Storage.Driver = DriverSQLite },
		"zero history":     func(c *Config) { c.Live.HistoryLength = 0 },
		"bad delay":        func(c *Config) { c.Live.ReconnectDelay = "soon" },
		"bad idle":         func(c *Config) { c.Session.Idle = "-1m" },
		"empty cookie":     func(c *Config) { c.Session.CookieName = "" },
	}
	for name, mutate := range cases {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "console.yaml")
	cfg := DefaultConfig()
	cfg.Listen = ":9999"
	require.NoError(t, cfg.Save(path))

	t.Setenv("ADMINTABLE_LISTEN", "")
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", loaded.Listen)
}
