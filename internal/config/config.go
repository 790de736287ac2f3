// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Cursor strategy names accepted by sync.strategy.
const (
	StrategyDateWindow = "date_window"
	StrategyNumericID  = "numeric_id"
	StrategyPageCursor = "page_cursor"
)

// Config holds all application configuration.
type Config struct {
	BioTime    BioTimeConfig    `koanf:"biotime"`
	Sync       SyncConfig       `koanf:"sync"`
	Database   DatabaseConfig   `koanf:"database"`
	Checkpoint CheckpointConfig `koanf:"checkpoint"`
	Server     ServerConfig     `koanf:"server"`
	NATS       NATSConfig       `koanf:"nats"`
	Security   SecurityConfig   `koanf:"security"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// BioTimeConfig describes the remote time-clock service connector.
type BioTimeConfig struct {
	// ConnectorID is the stable key for this connector's row and checkpoint.
	ConnectorID string `koanf:"connector_id"`
	URL         string `koanf:"url"`
	Username    string `koanf:"username"`
	Password    string `koanf:"password"`

	PageSize          int           `koanf:"page_size"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`

	// FetchRetries bounds retries of a single page before it is reported
	// as remote-unavailable.
	FetchRetries int `koanf:"fetch_retries"`

	// Timezone is used to interpret the server's naive punch_time values.
	Timezone string `koanf:"timezone"`
}

// SyncConfig controls the sync orchestrator.
type SyncConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Interval      time.Duration `koanf:"interval"`
	Strategy      string        `koanf:"strategy"`
	SyncOnStartup bool          `koanf:"sync_on_startup"`

	RetryAttempts     int           `koanf:"retry_attempts"`
	RetryInitialDelay time.Duration `koanf:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `koanf:"retry_max_delay"`

	MaxRecordsPerCycle int `koanf:"max_records_per_cycle"`

	InitialWindow   time.Duration `koanf:"initial_window"`
	MaxWindow       time.Duration `koanf:"max_window"`
	DefaultLookback time.Duration `koanf:"default_lookback"`

	IdentityCacheSize int           `koanf:"identity_cache_size"`
	IdentityCacheTTL  time.Duration `koanf:"identity_cache_ttl"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// CheckpointConfig holds the BadgerDB checkpoint store settings.
type CheckpointConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// ServerConfig holds the trigger API listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// Addr returns host:port for http.Server.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// NATSConfig controls check-in event publishing over NATS JetStream.
// When disabled, events go to an in-process channel.
type NATSConfig struct {
	Enabled       bool          `koanf:"enabled"`
	URL           string        `koanf:"url"`
	Topic         string        `koanf:"topic"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`

	// Stream is the JetStream stream holding Topic. It is created or
	// updated on startup.
	Stream          string        `koanf:"stream"`
	DuplicateWindow time.Duration `koanf:"duplicate_window"`
	MaxAge          time.Duration `koanf:"max_age"`
}

// SecurityConfig holds secrets used by the service itself.
type SecurityConfig struct {
	// EncryptionKey enables AES-GCM encryption of connector credentials
	// at rest. Empty disables encryption.
	EncryptionKey string `koanf:"encryption_key"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Location resolves BioTime.Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.BioTime.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.BioTime.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid BIOTIME_TIMEZONE %q: %w", c.BioTime.Timezone, err)
	}
	return loc, nil
}
