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

// Package config loads the server configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jeremyhahn/passkeyd/pkg/passkey"
	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Passkey   passkey.Config  `yaml:"passkey"`
	Token     TokenConfig     `yaml:"token"`
	Storage   StorageConfig   `yaml:"storage"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig contains server-level settings
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TokenConfig controls the bearer tokens minted after a successful
// authentication ceremony.
type TokenConfig struct {
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer"`
	Audience string        `yaml:"audience"`
	TTL      time.Duration `yaml:"ttl"`
}

// StorageConfig selects the account document backend
type StorageConfig struct {
	Backend string `yaml:"backend"` // memory, sqlite
	Path    string `yaml:"path"`    // sqlite file path
}

// RateLimitConfig controls per-account rate limiting
type RateLimitConfig struct {
	Enabled   bool    `yaml:"enabled"`
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration with development defaults. The
// in-memory store is only suitable for local use.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8443,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Storage: StorageConfig{Backend: "memory"},
		RateLimit: RateLimitConfig{
			Enabled:   false,
			PerSecond: 5,
			Burst:     10,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load reads configuration from a YAML file and applies environment variable overrides
func Load(path string) (*Config, error) {
	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("PASSKEYD_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("PASSKEYD_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			log.Printf("Warning: invalid PASSKEYD_PORT value %q, using default %d: %v",
				portStr, cfg.Server.Port, err)
		} else if port < 1 || port > 65535 {
			log.Printf("Warning: invalid PASSKEYD_PORT value %q (out of range 1-65535), using default %d",
				portStr, cfg.Server.Port)
		} else {
			cfg.Server.Port = port
		}
	}

	if secret := os.Getenv("PASSKEYD_TOKEN_SECRET"); secret != "" {
		cfg.Token.Secret = secret
	}

	if rpID := os.Getenv("PASSKEYD_RP_ID"); rpID != "" {
		cfg.Passkey.DefaultRPID = rpID
	}
	if origins := os.Getenv("PASSKEYD_ALLOWED_ORIGINS"); origins != "" {
		cfg.Passkey.AllowedOrigins = splitAndTrim(origins)
	}
	if suffixes := os.Getenv("PASSKEYD_ORIGIN_SUFFIXES"); suffixes != "" {
		cfg.Passkey.OriginSuffixes = splitAndTrim(suffixes)
	}

	if backend := os.Getenv("PASSKEYD_STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if path := os.Getenv("PASSKEYD_STORAGE_PATH"); path != "" {
		cfg.Storage.Path = path
	}

	if level := os.Getenv("PASSKEYD_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("PASSKEYD_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	switch c.Storage.Backend {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown storage backend: %s (must be memory or sqlite)", c.Storage.Backend)
	}

	if c.Token.Secret == "" {
		return fmt.Errorf("token secret must be specified")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.PerSecond <= 0 {
			return fmt.Errorf("ratelimit per_second must be positive")
		}
		if c.RateLimit.Burst < 1 {
			return fmt.Errorf("ratelimit burst must be at least 1")
		}
	}

	c.Passkey.SetDefaults()
	if err := c.Passkey.Validate(); err != nil {
		return fmt.Errorf("passkey: %w", err)
	}

	return nil
}

// TokenSettings converts the token section into the identity bridge
// configuration. Unset fields fall back to the bridge defaults.
func (c *Config) TokenSettings() passkey.TokenConfig {
	return passkey.TokenConfig{
		Secret:   []byte(c.Token.Secret),
		Issuer:   c.Token.Issuer,
		Audience: c.Token.Audience,
		TTL:      c.Token.TTL,
	}
}
