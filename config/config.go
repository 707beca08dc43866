// Package config holds the live server settings: an immutable ServerConfig
// snapshot, an atomically swapped Store that collaborators read on demand,
// and loaders for YAML files and environment overrides.
package config

import (
	"errors"
	"fmt"
	"mime"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zsiec/livecam/media"
)

// Defaults match the camera application's factory settings.
const (
	DefaultHost         = "0.0.0.0"
	DefaultPort         = 8080
	DefaultFPS          = 30
	DefaultPassword     = "123456"
	DefaultDrainTimeout = 200 * time.Millisecond
	DefaultWriteTimeout = 5 * time.Second
	MaxFPS              = 120
)

// ServerConfig is one settings snapshot. Values are copied out of the Store,
// so a snapshot held by a connection never changes underneath it.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	FPS             int           `yaml:"fps"`
	PasswordEnabled bool          `yaml:"password_enabled"`
	Password        string        `yaml:"password"`
	ContentType     string        `yaml:"content_type"`
	DrainTimeout    time.Duration `yaml:"drain_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	SecurePort      int           `yaml:"secure_port"` // HTTP/3 mirror; 0 disables it
}

// Default returns the factory settings.
func Default() ServerConfig {
	return ServerConfig{
		Host:         DefaultHost,
		Port:         DefaultPort,
		FPS:          DefaultFPS,
		Password:     DefaultPassword,
		ContentType:  media.DefaultContentType,
		DrainTimeout: DefaultDrainTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Addr returns the host:port the primary listener binds.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SecureAddr returns the host:port of the HTTP/3 mirror.
func (c ServerConfig) SecureAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.SecurePort))
}

// FrameInterval returns the minimum spacing between two parts sent to the
// same viewer, or 0 when pacing is disabled.
func (c ServerConfig) FrameInterval() time.Duration {
	if c.FPS <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.FPS)
}

// Validate reports the first invalid field. Port 0 is accepted and lets the
// OS choose a free port.
func (c ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.SecurePort < 0 || c.SecurePort > 65535 {
		return fmt.Errorf("config: secure_port %d out of range", c.SecurePort)
	}
	if c.SecurePort != 0 && c.SecurePort == c.Port {
		return errors.New("config: secure_port must differ from port")
	}
	if c.FPS < 0 || c.FPS > MaxFPS {
		return fmt.Errorf("config: fps %d out of range [0, %d]", c.FPS, MaxFPS)
	}
	if c.DrainTimeout < 0 {
		return errors.New("config: drain_timeout must not be negative")
	}
	if c.WriteTimeout < 0 {
		return errors.New("config: write_timeout must not be negative")
	}
	if _, _, err := mime.ParseMediaType(c.ContentType); err != nil {
		return fmt.Errorf("config: content_type %q: %w", c.ContentType, err)
	}
	return nil
}

// Parse decodes YAML on top of the defaults and validates the result.
// Fields absent from the document keep their default values.
func Parse(data []byte) (ServerConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// LoadFile reads and parses a YAML settings file.
func LoadFile(path string) (ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}
