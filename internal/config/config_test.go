// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of passkeyd.
//
// passkeyd is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
server:
  host: 0.0.0.0
  port: 9090
token:
  secret: config-test-secret
  issuer: passkeyd-test
passkey:
  display_name: Example Corp
  default_rp_id: example.com
  allowed_origins:
    - https://example.com
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8443, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "config-test-secret", cfg.Token.Secret)
	assert.Equal(t, "example.com", cfg.Passkey.DefaultRPID)
	assert.Equal(t, []string{"https://example.com"}, cfg.Passkey.AllowedOrigins)

	// Unset sections keep their defaults.
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)

	// Validate applied the passkey defaults.
	assert.Equal(t, 60*time.Second, cfg.Passkey.Timeout)
	assert.Equal(t, "preferred", cfg.Passkey.UserVerification)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [not a map"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PASSKEYD_HOST", "passkeys.internal")
	t.Setenv("PASSKEYD_PORT", "7000")
	t.Setenv("PASSKEYD_TOKEN_SECRET", "env-secret")
	t.Setenv("PASSKEYD_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("PASSKEYD_STORAGE_BACKEND", "sqlite")
	t.Setenv("PASSKEYD_STORAGE_PATH", "/tmp/passkeyd.db")
	t.Setenv("PASSKEYD_LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "passkeys.internal", cfg.Server.Host)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "env-secret", cfg.Token.Secret)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Passkey.AllowedOrigins)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/passkeyd.db", cfg.Storage.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_InvalidEnvPortKeepsDefault(t *testing.T) {
	t.Setenv("PASSKEYD_PORT", "not-a-port")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Token.Secret = "s3cret"
		cfg.Passkey.RPDisplayName = "Example Corp"
		cfg.Passkey.AllowedOrigins = []string{"https://example.com"}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "invalid log format",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Storage.Backend = "postgres" },
			wantErr: "unknown storage backend",
		},
		{
			name:    "sqlite without path",
			mutate:  func(c *Config) { c.Storage.Backend = "sqlite" },
			wantErr: "storage path is required",
		},
		{
			name:    "missing token secret",
			mutate:  func(c *Config) { c.Token.Secret = "" },
			wantErr: "token secret",
		},
		{
			name: "ratelimit needs positive rate",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = true
				c.RateLimit.PerSecond = 0
			},
			wantErr: "per_second must be positive",
		},
		{
			name: "ratelimit needs burst",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = true
				c.RateLimit.Burst = 0
			},
			wantErr: "burst must be at least 1",
		},
		{
			name:    "passkey section validated",
			mutate:  func(c *Config) { c.Passkey.AllowedOrigins = nil },
			wantErr: "passkey:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestTokenSettings(t *testing.T) {
	cfg := Default()
	cfg.Token = TokenConfig{
		Secret:   "s3cret",
		Issuer:   "passkeyd",
		Audience: "example.com",
		TTL:      30 * time.Minute,
	}

	settings := cfg.TokenSettings()
	assert.Equal(t, []byte("s3cret"), settings.Secret)
	assert.Equal(t, "passkeyd", settings.Issuer)
	assert.Equal(t, "example.com", settings.Audience)
	assert.Equal(t, 30*time.Minute, settings.TTL)
}
