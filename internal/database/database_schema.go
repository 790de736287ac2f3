// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package database

import (
	"context"
	"fmt"
	"time"
)

// Timestamps are stored as naive TIMESTAMP values in UTC.
var tableStatements = []string{
	`CREATE SEQUENCE IF NOT EXISTS employee_checkins_id_seq START 1`,
	`CREATE SEQUENCE IF NOT EXISTS orphan_checkins_id_seq START 1`,
	`CREATE SEQUENCE IF NOT EXISTS failed_checkins_id_seq START 1`,

	`CREATE TABLE IF NOT EXISTS employees (
		employee_id TEXT PRIMARY KEY,
		employee_name TEXT NOT NULL,
		device_code TEXT NOT NULL,
		device_code_normalized TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'Active',
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS employee_checkins (
		id BIGINT PRIMARY KEY DEFAULT nextval('employee_checkins_id_seq'),
		employee_id TEXT NOT NULL,
		employee_name TEXT,
		log_type TEXT NOT NULL,
		time TIMESTAMP NOT NULL,
		device_id TEXT,
		remote_id BIGINT,
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS orphan_checkins (
		id BIGINT PRIMARY KEY DEFAULT nextval('orphan_checkins_id_seq'),
		employee_code TEXT NOT NULL,
		employee_name TEXT,
		log_type TEXT NOT NULL,
		time TIMESTAMP NOT NULL,
		device_id TEXT,
		remote_id BIGINT,
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS failed_checkins (
		id BIGINT PRIMARY KEY DEFAULT nextval('failed_checkins_id_seq'),
		connector_id TEXT NOT NULL,
		remote_id BIGINT,
		natural_key TEXT,
		reason TEXT NOT NULL,
		payload TEXT,
		failed_at TIMESTAMP NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS devices (
		remote_id BIGINT PRIMARY KEY,
		name TEXT,
		serial_number TEXT NOT NULL,
		alias TEXT NOT NULL,
		ip_address TEXT,
		area_label TEXT,
		last_activity TIMESTAMP,
		last_sync_request TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS connectors (
		id TEXT PRIMARY KEY,
		base_url TEXT NOT NULL,
		username TEXT NOT NULL,
		secret TEXT,
		bearer_token TEXT,
		enabled BOOLEAN NOT NULL DEFAULT false,
		strategy TEXT NOT NULL,
		page_size INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
}

// The natural keys are unique; the check-in tables are never updated in place.
var indexStatements = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_employee_checkins_natural ON employee_checkins(employee_id, time, log_type)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_orphan_checkins_natural ON orphan_checkins(employee_code, time, log_type)`,
	`CREATE INDEX IF NOT EXISTS idx_failed_checkins_failed_at ON failed_checkins(failed_at)`,
}

func (db *DB) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, stmt := range tableStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (db *DB) createIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, stmt := range indexStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
