// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

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

// DefaultConfigPaths are searched in order when no explicit path is given.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/clocksync/config.yaml",
	"/etc/clocksync/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		BioTime: BioTimeConfig{
			ConnectorID:       "default",
			PageSize:          100,
			Timeout:           30 * time.Second,
			RequestsPerSecond: 5,
			Burst:             5,
			FetchRetries:      3,
		},
		Sync: SyncConfig{
			Enabled:            true,
			Interval:           time.Hour,
			Strategy:           StrategyDateWindow,
			SyncOnStartup:      true,
			RetryAttempts:      3,
			RetryInitialDelay:  time.Second,
			RetryMaxDelay:      30 * time.Second,
			MaxRecordsPerCycle: 5000,
			InitialWindow:      2 * time.Hour,
			MaxWindow:          24 * time.Hour,
			DefaultLookback:    24 * time.Hour,
			IdentityCacheSize:  4096,
			IdentityCacheTTL:   10 * time.Minute,
		},
		Database: DatabaseConfig{
			Path:      "/data/clocksync.duckdb",
			MaxMemory: "512MB",
		},
		Checkpoint: CheckpointConfig{
			Path: "/data/checkpoints",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Timeout:         30 * time.Second,
			RateLimitReqs:   30,
			RateLimitWindow: time.Minute,
		},
		NATS: NATSConfig{
			Enabled:         false,
			URL:             "nats://127.0.0.1:4222",
			Topic:           "clocksync.checkins",
			MaxReconnects:   -1,
			ReconnectWait:   2 * time.Second,
			Stream:          "CLOCKSYNC",
			DuplicateWindow: 2 * time.Minute,
			MaxAge:          7 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the config file at path (or
// the first of DefaultConfigPaths when path is empty), and the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
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

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var envMappings = map[string]string{
	"biotime_connector_id":        "biotime.connector_id",
	"biotime_url":                 "biotime.url",
	"biotime_username":            "biotime.username",
	"biotime_password":            "biotime.password",
	"biotime_page_size":           "biotime.page_size",
	"biotime_timeout":             "biotime.timeout",
	"biotime_requests_per_second": "biotime.requests_per_second",
	"biotime_burst":               "biotime.burst",
	"biotime_fetch_retries":       "biotime.fetch_retries",
	"biotime_timezone":            "biotime.timezone",

	"sync_enabled":               "sync.enabled",
	"sync_interval":              "sync.interval",
	"sync_strategy":              "sync.strategy",
	"sync_on_startup":            "sync.sync_on_startup",
	"sync_retry_attempts":        "sync.retry_attempts",
	"sync_retry_initial_delay":   "sync.retry_initial_delay",
	"sync_retry_max_delay":       "sync.retry_max_delay",
	"sync_max_records_per_cycle": "sync.max_records_per_cycle",
	"sync_initial_window":        "sync.initial_window",
	"sync_max_window":            "sync.max_window",
	"sync_default_lookback":      "sync.default_lookback",
	"identity_cache_size":        "sync.identity_cache_size",
	"identity_cache_ttl":         "sync.identity_cache_ttl",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"checkpoint_path":      "checkpoint.path",
	"checkpoint_in_memory": "checkpoint.in_memory",

	"http_host":         "server.host",
	"http_port":         "server.port",
	"http_timeout":      "server.timeout",
	"rate_limit_reqs":   "server.rate_limit_reqs",
	"rate_limit_window": "server.rate_limit_window",

	"nats_enabled":        "nats.enabled",
	"nats_url":            "nats.url",
	"nats_topic":          "nats.topic",
	"nats_max_reconnects": "nats.max_reconnects",
	"nats_reconnect_wait": "nats.reconnect_wait",
	"nats_stream":         "nats.stream",
	"nats_dedup_window":   "nats.duplicate_window",
	"nats_max_age":        "nats.max_age",

	"encryption_key": "security.encryption_key",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps known environment variables to config keys.
// Unknown variables return "" so koanf ignores them.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
