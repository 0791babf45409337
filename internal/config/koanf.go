// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/mediatheca/config.yaml",
	"/etc/mediatheca/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Jellyfin: JellyfinConfig{
			Enabled:   false,
			ServerID:  "", // Auto-generated if empty
			URL:       "",
			APIKey:    "",
			PageSize:  100,
			PageDelay: 250 * time.Millisecond,
			Workers:   4,
			MaxPages:  10000,
			Timeout:   30 * time.Second,

			LibraryConcurrency: 1,
		},
		Database: DatabaseConfig{
			Path:      "/data/mediatheca.duckdb",
			MaxMemory: "2GB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		Sync: SyncConfig{
			Interval:                 12 * time.Hour,
			ReconcileInterval:        24 * time.Hour,
			RetryAttempts:            5,
			RetryDelay:               2 * time.Second,
			ActivityPageSize:         100,
			ActivitySafetyMultiplier: 10,
		},
		Server: ServerConfig{
			Port:    9096,
			Host:    "0.0.0.0",
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// Precedence is ENV > File > Defaults. The loaded configuration is
// validated before being returned.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	// Check environment variable first
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - JELLYFIN_URL -> jellyfin.url
//   - JELLYFIN_API_KEY -> jellyfin.api_key
//   - SYNC_RECONCILE_INTERVAL -> sync.reconcile_interval
//   - DUCKDB_PATH -> database.path
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Jellyfin mappings
		"jellyfin_enabled":    "jellyfin.enabled",
		"jellyfin_server_id":  "jellyfin.server_id",
		"jellyfin_url":        "jellyfin.url",
		"jellyfin_api_key":    "jellyfin.api_key",
		"jellyfin_page_size":  "jellyfin.page_size",
		"jellyfin_page_delay": "jellyfin.page_delay",
		"jellyfin_workers":    "jellyfin.workers",
		"jellyfin_max_pages":  "jellyfin.max_pages",
		"jellyfin_timeout":    "jellyfin.timeout",

		"jellyfin_library_concurrency": "jellyfin.library_concurrency",

		// Database mappings
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Sync mappings
		"sync_interval":                   "sync.interval",
		"sync_reconcile_interval":         "sync.reconcile_interval",
		"sync_retry_attempts":             "sync.retry_attempts",
		"sync_retry_delay":                "sync.retry_delay",
		"sync_activity_page_size":         "sync.activity_page_size",
		"sync_activity_safety_multiplier": "sync.activity_safety_multiplier",

		// Server mappings
		"http_port":    "server.port",
		"http_host":    "server.host",
		"http_timeout": "server.timeout",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// For unmapped keys, return empty string to skip them.
	// This prevents random environment variables from polluting config.
	return ""
}
