// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.URL != DefaultServerURL {
		t.Errorf("Server.URL = %q, want %q", cfg.Server.URL, DefaultServerURL)
	}
	if cfg.Stream.IdleTimeoutSecs != DefaultIdleTimeoutSecs {
		t.Errorf("IdleTimeoutSecs = %d, want %d", cfg.Stream.IdleTimeoutSecs, DefaultIdleTimeoutSecs)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults, got %v", err)
	}
	if cfg.Server.URL != DefaultServerURL {
		t.Errorf("Server.URL = %q, want default", cfg.Server.URL)
	}
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
url = "https://pni.example.com"
timeout_secs = 10

[stream]
idle_timeout_secs = 0

[ui]
theme = "dark"
plain_mode = true
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error: %v", err)
	}
	if cfg.Server.URL != "https://pni.example.com" {
		t.Errorf("Server.URL = %q", cfg.Server.URL)
	}
	if cfg.Stream.IdleTimeoutSecs != 0 {
		t.Errorf("IdleTimeoutSecs = %d, want 0", cfg.Stream.IdleTimeoutSecs)
	}
	if cfg.IdleTimeout() != 0 {
		t.Errorf("IdleTimeout() = %v, want 0", cfg.IdleTimeout())
	}
	if !cfg.UI.PlainMode || cfg.UI.Theme != "dark" {
		t.Errorf("UI = %+v", cfg.UI)
	}
	if cfg.RequestTimeout() != 10*time.Second {
		t.Errorf("RequestTimeout() = %v", cfg.RequestTimeout())
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PNI_SERVER_URL", "http://10.0.0.5:9000")
	t.Setenv("PNI_THEME", "light")

	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.URL != "http://10.0.0.5:9000" {
		t.Errorf("Server.URL = %q", cfg.Server.URL)
	}
	if cfg.UI.Theme != "light" {
		t.Errorf("Theme = %q", cfg.UI.Theme)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"empty url", func(c *Config) { c.Server.URL = "" }, true},
		{"bad scheme", func(c *Config) { c.Server.URL = "ftp://host" }, true},
		{"missing host", func(c *Config) { c.Server.URL = "http://" }, true},
		{"negative timeout", func(c *Config) { c.Server.TimeoutSecs = -1 }, true},
		{"negative idle", func(c *Config) { c.Stream.IdleTimeoutSecs = -5 }, true},
		{"unknown theme", func(c *Config) { c.UI.Theme = "solarized" }, true},
		{"zero timeouts ok", func(c *Config) {
			c.Server.TimeoutSecs = 0
			c.Stream.IdleTimeoutSecs = 0
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigDirEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PNI_CONFIG_DIR", dir)

	got, err := ConfigDir()
	if err != nil {
		t.Fatal(err)
	}
	if got != dir {
		t.Errorf("ConfigDir() = %q, want %q", got, dir)
	}

	path, err := ConfigPath()
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, "config.toml") {
		t.Errorf("ConfigPath() = %q", path)
	}
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[server]\nurl = \"http://a:1\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var got *Config
	w, err := NewWatcher(path, 50*time.Millisecond, func(c *Config) {
		mu.Lock()
		got = c
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Watch(); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("[server]\nurl = \"http://b:2\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for {
		mu.Lock()
		done := got != nil && got.Server.URL == "http://b:2"
		mu.Unlock()
		if done {
			return
		}
		select {
		case <-deadline:
			t.Fatal("watcher never delivered updated config")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
