// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that required configuration is present and consistent.
func (c *Config) Validate() error {
	if err := c.validateBioTime(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateBioTime() error {
	b := &c.BioTime
	if b.ConnectorID == "" {
		return fmt.Errorf("BIOTIME_CONNECTOR_ID must not be empty")
	}
	if b.URL == "" {
		return fmt.Errorf("BIOTIME_URL is required")
	}
	u, err := url.Parse(b.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("BIOTIME_URL must be an absolute http(s) URL, got %q", b.URL)
	}
	b.URL = strings.TrimRight(b.URL, "/")

	if b.Username == "" || b.Password == "" {
		return fmt.Errorf("BIOTIME_USERNAME and BIOTIME_PASSWORD are required")
	}
	if b.PageSize < 1 || b.PageSize > 10000 {
		return fmt.Errorf("BIOTIME_PAGE_SIZE must be between 1 and 10000, got %d", b.PageSize)
	}
	if b.Timeout <= 0 {
		return fmt.Errorf("BIOTIME_TIMEOUT must be positive")
	}
	if b.RequestsPerSecond <= 0 {
		return fmt.Errorf("BIOTIME_REQUESTS_PER_SECOND must be positive")
	}
	if b.Burst < 1 {
		b.Burst = 1
	}
	if b.FetchRetries < 1 {
		return fmt.Errorf("BIOTIME_FETCH_RETRIES must be at least 1, got %d", b.FetchRetries)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSync() error {
	s := &c.Sync
	switch s.Strategy {
	case StrategyDateWindow, StrategyNumericID, StrategyPageCursor:
	default:
		return fmt.Errorf("SYNC_STRATEGY must be one of %s, %s, %s; got %q",
			StrategyDateWindow, StrategyNumericID, StrategyPageCursor, s.Strategy)
	}
	if s.Enabled && s.Interval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be positive when sync is enabled")
	}
	if s.RetryAttempts < 1 {
		return fmt.Errorf("SYNC_RETRY_ATTEMPTS must be at least 1, got %d", s.RetryAttempts)
	}
	if s.RetryInitialDelay <= 0 || s.RetryMaxDelay < s.RetryInitialDelay {
		return fmt.Errorf("SYNC_RETRY_INITIAL_DELAY must be positive and not exceed SYNC_RETRY_MAX_DELAY")
	}
	if s.MaxRecordsPerCycle < 1 {
		return fmt.Errorf("SYNC_MAX_RECORDS_PER_CYCLE must be at least 1, got %d", s.MaxRecordsPerCycle)
	}
	if s.InitialWindow <= 0 || s.MaxWindow < s.InitialWindow {
		return fmt.Errorf("SYNC_INITIAL_WINDOW must be positive and not exceed SYNC_MAX_WINDOW")
	}
	if s.DefaultLookback <= 0 {
		return fmt.Errorf("SYNC_DEFAULT_LOOKBACK must be positive")
	}
	if s.IdentityCacheSize < 1 {
		return fmt.Errorf("IDENTITY_CACHE_SIZE must be at least 1")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if !c.Checkpoint.InMemory && c.Checkpoint.Path == "" {
		return fmt.Errorf("CHECKPOINT_PATH is required unless CHECKPOINT_IN_MEMORY=true")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if !strings.HasPrefix(c.NATS.URL, "nats://") && !strings.HasPrefix(c.NATS.URL, "tls://") {
		return fmt.Errorf("NATS_URL must start with nats:// or tls://, got %q", c.NATS.URL)
	}
	if c.NATS.Topic == "" {
		return fmt.Errorf("NATS_TOPIC is required when NATS_ENABLED=true")
	}
	if c.NATS.Stream == "" {
		return fmt.Errorf("NATS_STREAM is required when NATS_ENABLED=true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "disabled", "off":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
