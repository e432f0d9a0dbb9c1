// Package config loads and stores CLI configuration in the XDG config dir.
// Only non-secret settings are kept here; secrets go to OS keychain.
//
// Precedence, lowest first: built-in defaults, config.json, a .env file in the
// working directory, process environment. Flags are applied by cmd on top.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vkbacademy/cli/internal/endpoints"
	"vkbacademy/cli/internal/xdg"

	"github.com/joho/godotenv"
)

// Environment variables read by Load.
const (
	EnvAPIURL         = "VKBACADEMY_API_URL"
	EnvLogLevel       = "VKBACADEMY_LOG_LEVEL"
	EnvVerbose        = "VKBACADEMY_VERBOSE"
	EnvRefreshTimeout = "VKBACADEMY_REFRESH_TIMEOUT"
	EnvKeyringBackend = "VKBACADEMY_KEYRING_BACKEND"
)

// Config holds non-sensitive CLI settings.
type Config struct {
	APIURL         string         `json:"api_url"`
	LogLevel       string         `json:"log_level"`
	Verbose        bool           `json:"verbose,omitempty"`
	RequestTimeout Duration       `json:"request_timeout"`
	RefreshTimeout Duration       `json:"refresh_timeout"`
	KeyringBackend string         `json:"keyring_backend,omitempty"` // "", "os", "file"
	Endpoints      endpoints.HTTP `json:"endpoints"`
	Hooks          HooksConfig    `json:"hooks"`
}

// HooksConfig tunes the background side-effect queue.
type HooksConfig struct {
	Workers  int      `json:"workers"`
	Buffer   int      `json:"buffer"`
	Attempts int      `json:"attempts"`
	Backoff  Duration `json:"backoff"`
}

// Duration is a time.Duration that marshals as a Go duration string ("10s").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("duration must be a string like \"10s\": %w", err)
		}
		*d = Duration(time.Duration(n))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		APIURL:         endpoints.DefaultBaseURL,
		LogLevel:       "info",
		RequestTimeout: Duration(15 * time.Second),
		RefreshTimeout: Duration(10 * time.Second),
		Endpoints:      endpoints.Defaults(),
		Hooks: HooksConfig{
			Workers:  2,
			Buffer:   32,
			Attempts: 3,
			Backoff:  Duration(500 * time.Millisecond),
		},
	}
}

// path returns the path to the config file.
func path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads configuration; missing file returns defaults.
// A .env file in the working directory is loaded into the environment first
// without overriding variables that are already set.
func Load() (Config, error) {
	c, err := fileConfig()
	if err != nil {
		return c, err
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return c, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(&c, os.LookupEnv); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// LoadFile returns defaults overlaid with config.json only, ignoring the
// environment. `config set` edits this view so overrides are never persisted.
func LoadFile() (Config, error) {
	c, err := fileConfig()
	if err != nil {
		return c, err
	}
	return c, c.Validate()
}

func fileConfig() (Config, error) {
	c := Default()
	p, err := path()
	if err != nil {
		return c, err
	}
	return c, loadFile(p, &c)
}

func loadFile(p string, c *Config) error {
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", p, err)
	}
	c.Endpoints = c.Endpoints.Merge()
	return nil
}

// applyEnv overlays environment values on c.
func applyEnv(c *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAPIURL); ok && strings.TrimSpace(v) != "" {
		c.APIURL = v
	}
	if v, ok := lookup(EnvLogLevel); ok && strings.TrimSpace(v) != "" {
		c.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(EnvVerbose); ok && v == "1" {
		c.Verbose = true
	}
	if v, ok := lookup(EnvRefreshTimeout); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRefreshTimeout, err)
		}
		c.RefreshTimeout = Duration(d)
	}
	if v, ok := lookup(EnvKeyringBackend); ok && strings.TrimSpace(v) != "" {
		c.KeyringBackend = strings.ToLower(strings.TrimSpace(v))
	}
	return nil
}

// Validate normalizes the API URL and checks ranges.
func (c *Config) Validate() error {
	base, err := endpoints.NormalizeBaseURL(c.APIURL)
	if err != nil {
		return err
	}
	c.APIURL = base
	if c.RefreshTimeout.Std() <= 0 {
		return fmt.Errorf("refresh_timeout must be positive")
	}
	if c.RequestTimeout.Std() <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	switch c.KeyringBackend {
	case "", "os", "file":
	default:
		return fmt.Errorf("keyring_backend must be \"os\" or \"file\", got %q", c.KeyringBackend)
	}
	if c.Hooks.Workers < 1 {
		c.Hooks.Workers = 1
	}
	if c.Hooks.Buffer < 1 {
		c.Hooks.Buffer = 1
	}
	return nil
}

// Save writes configuration with 0600 permissions.
func Save(c Config) error {
	p, err := path()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}

// Set updates a single key by its JSON name. Used by `config set`.
func (c *Config) Set(key, value string) error {
	switch key {
	case "api_url":
		c.APIURL = value
	case "log_level":
		c.LogLevel = strings.ToLower(value)
	case "keyring_backend":
		c.KeyringBackend = strings.ToLower(value)
	case "refresh_timeout", "request_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if key == "refresh_timeout" {
			c.RefreshTimeout = Duration(d)
		} else {
			c.RequestTimeout = Duration(d)
		}
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return c.Validate()
}
