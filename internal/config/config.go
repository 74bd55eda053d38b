// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for pni.
//
// Configuration lives in TOML at ~/.pni/config.toml, with built-in
// defaults and environment variable overrides applied on top.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete pni client configuration.
type Config struct {
	// Server connection settings
	Server ServerConfig `toml:"server"`

	// Streaming behavior
	Stream StreamConfig `toml:"stream"`

	// UI settings
	UI UIConfig `toml:"ui"`
}

// ServerConfig contains PNI server connection settings.
type ServerConfig struct {
	// URL is the base URL of the PNI server
	URL string `toml:"url"`
	// TimeoutSecs bounds non-streaming requests (0 uses the default)
	TimeoutSecs int `toml:"timeout_secs"`
}

// StreamConfig controls streaming reply behavior.
type StreamConfig struct {
	// IdleTimeoutSecs aborts a stream after this many seconds without a
	// chunk. 0 disables the watchdog.
	IdleTimeoutSecs int `toml:"idle_timeout_secs"`
}

// UIConfig contains terminal UI settings.
type UIConfig struct {
	// Theme selects the markdown render theme: "auto", "dark", "light"
	Theme string `toml:"theme"`
	// PlainMode disables the full-screen UI in favor of a line-based REPL
	PlainMode bool `toml:"plain_mode"`
	// WordWrap is the render width for markdown (0 = terminal width)
	WordWrap int `toml:"word_wrap"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	DefaultServerURL       = "http://127.0.0.1:8000"
	DefaultTimeoutSecs     = 30
	DefaultIdleTimeoutSecs = 120
	DefaultTheme           = "auto"
)

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:         DefaultServerURL,
			TimeoutSecs: DefaultTimeoutSecs,
		},
		Stream: StreamConfig{
			IdleTimeoutSecs: DefaultIdleTimeoutSecs,
		},
		UI: UIConfig{
			Theme: DefaultTheme,
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the pni configuration directory path. The
// PNI_CONFIG_DIR environment variable overrides the default ~/.pni.
func ConfigDir() (string, error) {
	if dir := os.Getenv("PNI_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".pni"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// StatePath returns the path to the client state database.
func StatePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state.db"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// =============================================================================
// LOAD
// =============================================================================

// Load reads the config file (if present), applies environment overrides,
// and validates the result. A missing file is not an error; defaults apply.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from an explicit file path.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, statErr := os.Stat(path); statErr == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if u := os.Getenv("PNI_SERVER_URL"); u != "" {
		c.Server.URL = u
	}
	if v := os.Getenv("PNI_PLAIN"); v != "" {
		if plain, err := strconv.ParseBool(v); err == nil {
			c.UI.PlainMode = plain
		}
	}
	if v := os.Getenv("PNI_THEME"); v != "" {
		c.UI.Theme = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return errors.New("server.url is required")
	}
	parsed, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("server.url is not a valid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("server.url must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("server.url is missing a host")
	}

	if c.Server.TimeoutSecs < 0 {
		return errors.New("server.timeout_secs cannot be negative")
	}
	if c.Stream.IdleTimeoutSecs < 0 {
		return errors.New("stream.idle_timeout_secs cannot be negative")
	}

	switch c.UI.Theme {
	case "auto", "dark", "light":
	default:
		return fmt.Errorf("ui.theme must be auto, dark, or light, got %q", c.UI.Theme)
	}
	if c.UI.WordWrap < 0 {
		return errors.New("ui.word_wrap cannot be negative")
	}
	return nil
}

// RequestTimeout returns the bound for non-streaming requests.
func (c *Config) RequestTimeout() time.Duration {
	secs := c.Server.TimeoutSecs
	if secs <= 0 {
		secs = DefaultTimeoutSecs
	}
	return time.Duration(secs) * time.Second
}

// IdleTimeout returns the streaming idle watchdog duration, or 0 when
// the watchdog is disabled.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Stream.IdleTimeoutSecs) * time.Second
}
