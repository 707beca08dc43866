package config

import (
	"fmt"
	"strconv"
	"time"
)

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides fields of cfg from environment variables:
//
//	HOST, PORT, FPS, PASSWORD, SECURE_PORT, CONTENT_TYPE,
//	DRAIN_TIMEOUT, WRITE_TIMEOUT
//
// A non-empty PASSWORD also enables password protection; PASSWORD set to
// the empty string disables it.
func ApplyEnv(cfg *ServerConfig, lookup LookupFunc) error {
	if v, ok := lookup("HOST"); ok && v != "" {
		cfg.Host = v
	}
	if err := envInt(lookup, "PORT", &cfg.Port); err != nil {
		return err
	}
	if err := envInt(lookup, "FPS", &cfg.FPS); err != nil {
		return err
	}
	if err := envInt(lookup, "SECURE_PORT", &cfg.SecurePort); err != nil {
		return err
	}
	if v, ok := lookup("PASSWORD"); ok {
		cfg.PasswordEnabled = v != ""
		if v != "" {
			cfg.Password = v
		}
	}
	if v, ok := lookup("CONTENT_TYPE"); ok && v != "" {
		cfg.ContentType = v
	}
	if err := envDuration(lookup, "DRAIN_TIMEOUT", &cfg.DrainTimeout); err != nil {
		return err
	}
	if err := envDuration(lookup, "WRITE_TIMEOUT", &cfg.WriteTimeout); err != nil {
		return err
	}
	return cfg.Validate()
}

func envInt(lookup LookupFunc, key string, dst *int) error {
	v, ok := lookup(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	v, ok := lookup(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = d
	return nil
}
