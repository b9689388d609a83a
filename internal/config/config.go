// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package config loads Gatehouse configuration from defaults, an optional
// YAML file, and command-line flags, in increasing order of precedence.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config holds the runtime configuration for the Gatehouse service.
type Config struct {
	// ListenAddr is the address the HTTP API binds to.
	ListenAddr string `koanf:"listen_addr"`
	// MetricsAddr is the address the observability server binds to.
	MetricsAddr string `koanf:"metrics_addr"`
	// DatabaseURL is the Postgres connection string.
	DatabaseURL string `koanf:"database_url"`
	// LogFormat selects the log output format: "json" or "text".
	LogFormat string `koanf:"log_format"`
	// SessionTTL is how long issued session tokens remain valid.
	SessionTTL time.Duration `koanf:"session_ttl"`
	// ResetTTL is how long issued password reset tokens remain valid.
	ResetTTL time.Duration `koanf:"reset_ttl"`
}

// Defaults returns the built-in configuration values.
func Defaults() Config {
	return Config{
		ListenAddr:  ":8080",
		MetricsAddr: "127.0.0.1:9100",
		LogFormat:   "json",
		SessionTTL:  24 * time.Hour,
		ResetTTL:    time.Hour,
	}
}

// RegisterFlags declares the configuration flags on the given flag set.
// Flag names match the koanf keys so flag values merge directly over
// file and default values, and untouched flags never clobber them.
func RegisterFlags(fs *pflag.FlagSet) {
	defaults := Defaults()
	fs.String("listen_addr", defaults.ListenAddr, "HTTP API listen address")
	fs.String("metrics_addr", defaults.MetricsAddr, "observability server listen address")
	fs.String("database_url", "", "Postgres connection string (overrides DATABASE_URL)")
	fs.String("log_format", defaults.LogFormat, "log output format (json or text)")
	fs.Duration("session_ttl", defaults.SessionTTL, "session token lifetime")
	fs.Duration("reset_ttl", defaults.ResetTTL, "password reset token lifetime")
}

// Load assembles the configuration. Precedence, lowest to highest:
// built-in defaults, the YAML file at path (if non-empty), the
// DATABASE_URL environment variable, then command-line flags.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	defaults := Defaults()
	if err := k.Set("listen_addr", defaults.ListenAddr); err != nil {
		return Config{}, oops.Wrap(err)
	}
	_ = k.Set("metrics_addr", defaults.MetricsAddr)
	_ = k.Set("log_format", defaults.LogFormat)
	_ = k.Set("session_ttl", defaults.SessionTTL)
	_ = k.Set("reset_ttl", defaults.ResetTTL)

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.With("path", path).Wrapf(err, "loading config file")
		}
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		_ = k.Set("database_url", url)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Wrapf(err, "loading flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Wrapf(err, "unmarshaling config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that cannot work at runtime.
func (c Config) Validate() error {
	errBuilder := oops.Code("CONFIG_INVALID")
	if c.ListenAddr == "" {
		return errBuilder.Errorf("listen_addr must not be empty")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return errBuilder.With("log_format", c.LogFormat).Errorf("log_format must be json or text")
	}
	if c.SessionTTL <= 0 {
		return errBuilder.Errorf("session_ttl must be positive")
	}
	if c.ResetTTL <= 0 {
		return errBuilder.Errorf("reset_ttl must be positive")
	}
	return nil
}
