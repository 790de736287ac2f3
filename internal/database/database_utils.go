// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/clocksync/internal/metrics"
)

// ensureContext creates a context with 30-second timeout if none provided
func (db *DB) ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 30*time.Second)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return context.WithTimeout(ctx, 30*time.Second)
	}
	return ctx, func() {}
}

// Checkpoint forces a WAL checkpoint
func (db *DB) Checkpoint(ctx context.Context) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("checkpoint failed: %w", err)
	}
	return nil
}

// GetDatabasePath returns the path to the database file
func (db *DB) GetDatabasePath() string {
	return db.cfg.Path
}

// RecordCounts holds row counts of the main tables.
type RecordCounts struct {
	Employees int64 `json:"employees"`
	Checkins  int64 `json:"checkins"`
	Orphans   int64 `json:"orphans"`
	Failed    int64 `json:"failed"`
	Devices   int64 `json:"devices"`
}

// GetRecordCounts returns the count of records in the main tables.
func (db *DB) GetRecordCounts(ctx context.Context) (RecordCounts, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var rc RecordCounts
	err := db.conn.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM employees),
		(SELECT COUNT(*) FROM employee_checkins),
		(SELECT COUNT(*) FROM orphan_checkins),
		(SELECT COUNT(*) FROM failed_checkins),
		(SELECT COUNT(*) FROM devices)`).Scan(&rc.Employees, &rc.Checkins, &rc.Orphans, &rc.Failed, &rc.Devices)
	if err != nil {
		return RecordCounts{}, fmt.Errorf("failed to count records: %w", err)
	}
	return rc, nil
}

// observe records query latency and errors for one operation.
func observe(operation, table string, start time.Time, err error) {
	metrics.RecordDBQuery(operation, table, time.Since(start), err)
}

// utc normalizes a timestamp for the naive TIMESTAMP columns.
func utc(t time.Time) time.Time {
	return t.UTC()
}

// optionalTime converts a nullable column value to a pointer.
func optionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
