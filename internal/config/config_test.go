// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/gatehouse")

	cfg, err := Load("", newFlagSet())
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, time.Hour, cfg.ResetTTL)
	assert.Equal(t, "postgres://localhost/gatehouse", cfg.DatabaseURL)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gatehouse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9000"
log_format: text
session_ttl: 1h
`), 0o600))

	cfg, err := Load(path, newFlagSet())
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	// Untouched keys keep their defaults.
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gatehouse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`listen_addr: ":9000"`), 0o600))

	fs := newFlagSet()
	require.NoError(t, fs.Parse([]string{"--listen_addr", ":7000", "--reset_ttl", "30m"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.ListenAddr)
	assert.Equal(t, 30*time.Minute, cfg.ResetTTL)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), newFlagSet())
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Defaults()
	base.DatabaseURL = "postgres://localhost/gatehouse"

	t.Run("accepts defaults", func(t *testing.T) {
		assert.NoError(t, base.Validate())
	})

	t.Run("rejects empty listen addr", func(t *testing.T) {
		cfg := base
		cfg.ListenAddr = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects unknown log format", func(t *testing.T) {
		cfg := base
		cfg.LogFormat = "xml"
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects non-positive TTLs", func(t *testing.T) {
		cfg := base
		cfg.SessionTTL = 0
		assert.Error(t, cfg.Validate())

		cfg = base
		cfg.ResetTTL = -time.Minute
		assert.Error(t, cfg.Validate())
	})
}
