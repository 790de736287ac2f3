// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/clocksync/internal/logging"
)

// Migration represents a versioned schema change applied after the base
// tables exist.
type Migration struct {
	Version     int
	Name        string
	Description string
	SQL         string
	AppliedAt   time.Time
}

const schemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	applied_at TIMESTAMP NOT NULL DEFAULT current_timestamp
);
`

// getMigrations returns all versioned migrations in order. Append only.
func (db *DB) getMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Name:        "failed_checkins_cycle_id",
			Description: "Tie dead-letter rows to the sync cycle that produced them",
			SQL:         `ALTER TABLE failed_checkins ADD COLUMN IF NOT EXISTS cycle_id TEXT`,
		},
		{
			Version:     2,
			Name:        "device_code_normalized_trim_zeros",
			Description: "Drop leading zeros from normalized device codes",
			SQL: `UPDATE employees SET device_code_normalized = CASE
				WHEN device_code_normalized <> '' AND ltrim(device_code_normalized, '0') = '' THEN '0'
				ELSE ltrim(device_code_normalized, '0') END`,
		},
	}
}

func (db *DB) getAppliedMigrations(ctx context.Context) (map[int]Migration, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT version, name, description, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]Migration)
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.Version, &m.Name, &m.Description, &m.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[m.Version] = m
	}
	return applied, rows.Err()
}

// runVersionedMigrations executes migrations that have not been applied yet.
func (db *DB) runVersionedMigrations() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, schemaMigrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := db.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	newMigrations := 0
	for _, m := range db.getMigrations() {
		if _, exists := applied[m.Version]; exists {
			continue
		}
		if _, err := db.conn.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("failed to execute migration v%d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := db.conn.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, description) VALUES (?, ?, ?)`,
			m.Version, m.Name, m.Description); err != nil {
			return fmt.Errorf("failed to record migration v%d: %w", m.Version, err)
		}
		newMigrations++
	}

	if newMigrations > 0 {
		logging.Info().Int("count", newMigrations).Msg("Applied database migrations")
	}
	return nil
}

// GetCurrentSchemaVersion returns the highest applied migration version.
func (db *DB) GetCurrentSchemaVersion(ctx context.Context) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var version int
	err := db.conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
