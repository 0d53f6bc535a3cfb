// Package config loads console settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all console configuration.
type Config struct {
	Listen         string `yaml:"listen"`
	BackendURL     string `yaml:"backend_url"`
	RequestTimeout string `yaml:"request_timeout"`
	LogLevel       string `yaml:"log_level"`

	Storage   StorageConfig   `yaml:"storage"`
	Session   SessionConfig   `yaml:"session"`
	Live      LiveConfig      `yaml:"live"`
	Render    RenderConfig    `yaml:"render"`
	LoginRate LoginRateConfig `yaml:"login_rate"`
}

// StorageConfig selects where browser-session state is persisted.
type StorageConfig struct {
	Driver string `yaml:"driver"` // memory, sqlite, postgres
	DSN    string `yaml:"dsn"`
}

// SessionConfig configures the browser session cookie.
type SessionConfig struct {
	CookieName string `yaml:"cookie_name"`
	Secure     bool   `yaml:"secure"`
	Idle       string `yaml:"idle"`
}

// LiveConfig configures live value subscriptions.
type LiveConfig struct {
	ReconnectDelay string `yaml:"reconnect_delay"`
	HistoryLength  int    `yaml:"history_length"`
}

// RenderConfig configures the generic field renderer.
type RenderConfig struct {
	BreakThreshold int `yaml:"break_threshold"`
}

// LoginRateConfig limits login attempts per client IP.
type LoginRateConfig struct {
	Burst     int `yaml:"burst"`
	PerSecond int `yaml:"per_second"`
}

// DefaultConfig returns the settings used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Listen:         ":8080",
		BackendURL:     "http://localhost:8000/api/",
		RequestTimeout: "30s",
		LogLevel:       "info",
		Storage:        StorageConfig{Driver: DriverMemory},
		Session:        SessionConfig{CookieName: "admintable_session", Idle: "1h"},
		Live:           LiveConfig{ReconnectDelay: "5s", HistoryLength: 50},
		Render:         RenderConfig{BreakThreshold: 25},
		LoginRate:      LoginRateConfig{Burst: 10, PerSecond: 1},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ADMINTABLE_BACKEND_URL"); v != "" {
		c.BackendURL = v
	}
	if v := os.Getenv("ADMINTABLE_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("ADMINTABLE_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("ADMINTABLE_STORAGE_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("ADMINTABLE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return errors.New("config: listen address is required")
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: invalid backend_url %q", c.BackendURL)
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("config: storage driver %s requires a dsn", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.Session.CookieName == "" {
		return errors.New("config: session cookie_name is required")
	}
	if c.Live.HistoryLength <= 0 {
		return errors.New("config: live history_length must be positive")
	}
	if c.Render.BreakThreshold <= 0 {
		return errors.New("config: render break_threshold must be positive")
	}
	for name, raw := range map[string]string{
		"request_timeout":      c.RequestTimeout,
		"live.reconnect_delay": c.Live.ReconnectDelay,
		"session.idle":         c.Session.Idle,
	} {
		if d, err := time.ParseDuration(raw); err != nil || d <= 0 {
			return fmt.Errorf("config: invalid %s %q", name, raw)
		}
	}
	return nil
}

// GetRequestTimeout returns the backend request timeout.
func (c *Config) GetRequestTimeout() time.Duration {
	return parseDuration(c.RequestTimeout, 30*time.Second)
}

// GetReconnectDelay returns the live reconnect delay.
func (c *Config) GetReconnectDelay() time.Duration {
	return parseDuration(c.Live.ReconnectDelay, 5*time.Second)
}

// GetSessionIdle returns how long an idle logged-in browser stays in memory.
func (c *Config) GetSessionIdle() time.Duration {
	return parseDuration(c.Session.Idle, time.Hour)
}

func parseDuration(raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
