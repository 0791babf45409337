// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds all application configuration loaded from defaults, an
// optional YAML file and environment variables.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (config.yaml)
//  3. Environment Variables: Override any setting
//
// Thread Safety:
// Config is immutable after LoadWithKoanf() and safe for concurrent read
// access from multiple goroutines.
type Config struct {
	Jellyfin JellyfinConfig `koanf:"jellyfin"`
	Database DatabaseConfig `koanf:"database"`
	Sync     SyncConfig     `koanf:"sync"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// JellyfinConfig holds Jellyfin server connection and fetch-tuning settings.
//
// Environment Variables:
//   - JELLYFIN_URL: Jellyfin server URL (e.g., http://localhost:8096)
//   - JELLYFIN_API_KEY: API key from Dashboard > API Keys
//   - JELLYFIN_SERVER_ID: Stable local identifier; auto-generated if empty
//   - JELLYFIN_PAGE_SIZE: Items fetched per page (default: 100)
//   - JELLYFIN_PAGE_DELAY: Minimum delay between page requests
//   - JELLYFIN_WORKERS: Concurrent per-library fetch workers (default: 4)
//   - JELLYFIN_MAX_PAGES: Upper bound on pages fetched per library
type JellyfinConfig struct {
	Enabled  bool   `koanf:"enabled"`
	ServerID string `koanf:"server_id"` // Auto-generated if empty
	URL      string `koanf:"url"`
	APIKey   string `koanf:"api_key"`

	PageSize  int           `koanf:"page_size"`
	PageDelay time.Duration `koanf:"page_delay"`
	Workers   int           `koanf:"workers"`   // Per-page element fan-out
	MaxPages  int           `koanf:"max_pages"` // Runaway-pagination guard

	// Libraries sync one at a time unless raised above 1.
	LibraryConcurrency int `koanf:"library_concurrency"`

	Timeout time.Duration `koanf:"timeout"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = use runtime.NumCPU()
}

// SyncConfig holds scheduling and retry settings for the sync engine.
type SyncConfig struct {
	Interval          time.Duration `koanf:"interval"`
	ReconcileInterval time.Duration `koanf:"reconcile_interval"`
	RetryAttempts     int           `koanf:"retry_attempts"`
	RetryDelay        time.Duration `koanf:"retry_delay"`

	// Activity cursor sync. The safety bound is SafetyMultiplier
	// activity pages beyond which a scan gives up looking for the
	// stored watermark.
	ActivityPageSize         int `koanf:"activity_page_size"`
	ActivitySafetyMultiplier int `koanf:"activity_safety_multiplier"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port    int           `koanf:"port"`
	Host    string        `koanf:"host"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // trace, debug, info, warn, error
	Format string `koanf:"format"` // json or console
	Caller bool   `koanf:"caller"`
}

// Validate checks the loaded configuration for missing or malformed values.
// It is called automatically by LoadWithKoanf.
func (c *Config) Validate() error {
	if c.Jellyfin.Enabled {
		if err := c.Jellyfin.validate(); err != nil {
			return fmt.Errorf("jellyfin: %w", err)
		}
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database: path is required")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync: interval must be positive, got %s", c.Sync.Interval)
	}
	if c.Sync.ReconcileInterval <= 0 {
		return fmt.Errorf("sync: reconcile_interval must be positive, got %s", c.Sync.ReconcileInterval)
	}
	if c.Sync.RetryAttempts < 0 {
		return fmt.Errorf("sync: retry_attempts cannot be negative")
	}
	if c.Sync.ActivityPageSize <= 0 {
		return fmt.Errorf("sync: activity_page_size must be positive, got %d", c.Sync.ActivityPageSize)
	}
	if c.Sync.ActivitySafetyMultiplier <= 0 {
		return fmt.Errorf("sync: activity_safety_multiplier must be positive, got %d", c.Sync.ActivitySafetyMultiplier)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server: port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if err := validateLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging: format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func (j *JellyfinConfig) validate() error {
	if j.URL == "" {
		return fmt.Errorf("url is required when enabled")
	}
	u, err := url.Parse(j.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("url %q is not a valid URL", j.URL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if j.APIKey == "" {
		return fmt.Errorf("api_key is required when enabled")
	}
	if j.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive, got %d", j.PageSize)
	}
	if j.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", j.Workers)
	}
	if j.MaxPages <= 0 {
		return fmt.Errorf("max_pages must be positive, got %d", j.MaxPages)
	}
	if j.PageDelay < 0 {
		return fmt.Errorf("page_delay cannot be negative")
	}
	if j.LibraryConcurrency <= 0 {
		return fmt.Errorf("library_concurrency must be positive, got %d", j.LibraryConcurrency)
	}
	return nil
}

func validateLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "trace", "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("level must be one of trace, debug, info, warn, error; got %q", level)
}

// BaseURL returns the Jellyfin URL without a trailing slash.
func (j *JellyfinConfig) BaseURL() string {
	return strings.TrimRight(j.URL, "/")
}
