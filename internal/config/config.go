// Package config holds the session configuration (~/.chatcore/config.toml)
// and the on-disk layout of a user's data directory.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that round-trips through TOML as a string
// like "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the session configuration. The retry and heartbeat values are
// tunable but must stay bounded: the pager never blocks indefinitely on
// attachment resolution and presence liveness is a periodic write.
type Config struct {
	PageSize                int      `toml:"page_size"`
	HeartbeatInterval       Duration `toml:"heartbeat_interval"`
	AttachmentRetryAttempts int      `toml:"attachment_retry_attempts"`
	AttachmentRetryDelay    Duration `toml:"attachment_retry_delay"`
}

// Default returns the configuration with stock values.
func Default() *Config {
	return &Config{
		PageSize:                50,
		HeartbeatInterval:       Duration{30 * time.Second},
		AttachmentRetryAttempts: 3,
		AttachmentRetryDelay:    Duration{100 * time.Millisecond},
	}
}

// Load reads config from path, filling unset fields with defaults. A missing
// file returns the defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = Default().PageSize
	}
	if cfg.HeartbeatInterval.Duration <= 0 {
		cfg.HeartbeatInterval = Default().HeartbeatInterval
	}
	if cfg.AttachmentRetryAttempts <= 0 {
		cfg.AttachmentRetryAttempts = Default().AttachmentRetryAttempts
	}
	if cfg.AttachmentRetryDelay.Duration <= 0 {
		cfg.AttachmentRetryDelay = Default().AttachmentRetryDelay
	}
	return cfg, nil
}

// Save writes config to path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
