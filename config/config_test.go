package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if cfg.Port != 8080 {
		t.Errorf("Port: got %d, want 8080", cfg.Port)
	}
	if cfg.FPS != 30 {
		t.Errorf("FPS: got %d, want 30", cfg.FPS)
	}
	if cfg.PasswordEnabled {
		t.Error("password protection should be off by default")
	}
	if cfg.Password != "123456" {
		t.Errorf("Password: got %q, want %q", cfg.Password, "123456")
	}
	if cfg.ContentType != "image/jpeg" {
		t.Errorf("ContentType: got %q", cfg.ContentType)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr: got %q", cfg.Addr())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestFrameInterval(t *testing.T) {
	t.Parallel()

	tests := []struct {
		fps  int
		want time.Duration
	}{
		{30, time.Second / 30},
		{1, time.Second},
		{0, 0},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.FPS = tt.fps
		if got := cfg.FrameInterval(); got != tt.want {
			t.Errorf("fps %d: got %v, want %v", tt.fps, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*ServerConfig)
		ok     bool
	}{
		{"ephemeral port", func(c *ServerConfig) { c.Port = 0 }, true},
		{"negative port", func(c *ServerConfig) { c.Port = -1 }, false},
		{"port too large", func(c *ServerConfig) { c.Port = 70000 }, false},
		{"fps too large", func(c *ServerConfig) { c.FPS = 1000 }, false},
		{"negative fps", func(c *ServerConfig) { c.FPS = -5 }, false},
		{"secure port clash", func(c *ServerConfig) { c.SecurePort = c.Port }, false},
		{"secure port", func(c *ServerConfig) { c.SecurePort = 8443 }, true},
		{"negative drain", func(c *ServerConfig) { c.DrainTimeout = -time.Second }, false},
		{"bad content type", func(c *ServerConfig) { c.ContentType = "" }, false},
		{"png", func(c *ServerConfig) { c.ContentType = "image/png" }, true},
	}
	for _, tt := range tests {
		cfg := Default()
		tt.mutate(&cfg)
		err := cfg.Validate()
		if tt.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
	}
}

func TestParseKeepsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte("port: 9090\npassword_enabled: true\npassword: secret\ndrain_timeout: 300ms\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port: got %d, want 9090", cfg.Port)
	}
	if !cfg.PasswordEnabled || cfg.Password != "secret" {
		t.Errorf("password: got %v/%q", cfg.PasswordEnabled, cfg.Password)
	}
	if cfg.DrainTimeout != 300*time.Millisecond {
		t.Errorf("DrainTimeout: got %v, want 300ms", cfg.DrainTimeout)
	}
	if cfg.FPS != DefaultFPS {
		t.Errorf("FPS: got %d, want default %d", cfg.FPS, DefaultFPS)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	t.Parallel()

	if _, err := Parse([]byte("fps: 999\n")); err == nil {
		t.Error("expected validation error")
	}
	if _, err := Parse([]byte("port: [1, 2\n")); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "livecam.yaml")
	if err := os.WriteFile(path, []byte("fps: 15\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.FPS != 15 {
		t.Errorf("FPS: got %d, want 15", cfg.FPS)
	}

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "missing.yaml") {
		t.Errorf("missing file: got %v", err)
	}
}
