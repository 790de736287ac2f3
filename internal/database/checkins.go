// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/clocksync/internal/models"
)

// CheckinExists reports whether a check-in with the natural key is stored.
// Orphan keys are looked up in orphan_checkins, resolved keys in employee_checkins.
func (db *DB) CheckinExists(ctx context.Context, key models.NaturalKey) (exists bool, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	table, column := "employee_checkins", "employee_id"
	if key.Orphan {
		table, column = "orphan_checkins", "employee_code"
	}
	start := time.Now()
	defer func() { observe("exists", table, start, err) }()

	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = ? AND time = ? AND log_type = ?)`, table, column)
	if err = db.conn.QueryRowContext(ctx, query, key.Identity, utc(key.Time), string(key.Direction)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check %s existence: %w", table, err)
	}
	return exists, nil
}

// InsertCheckin stores a resolved check-in. A natural key collision
// returns ErrDuplicateCheckin.
func (db *DB) InsertCheckin(ctx context.Context, c *models.ResolvedCheckin) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("insert", "employee_checkins", start, err) }()

	_, err = db.conn.ExecContext(ctx, `INSERT INTO employee_checkins
		(employee_id, employee_name, log_type, time, device_id, remote_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.EmployeeID, c.EmployeeName, string(c.Direction), utc(c.Time), c.DeviceLabel, c.RemoteID, time.Now().UTC())
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateCheckin
		}
		return fmt.Errorf("failed to insert check-in for %s: %w", c.EmployeeID, err)
	}
	return nil
}

// InsertOrphan stores a check-in whose device code matched no employee.
func (db *DB) InsertOrphan(ctx context.Context, o *models.OrphanCheckin) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("insert", "orphan_checkins", start, err) }()

	_, err = db.conn.ExecContext(ctx, `INSERT INTO orphan_checkins
		(employee_code, employee_name, log_type, time, device_id, remote_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.EmployeeCode, o.EmployeeName, string(o.Direction), utc(o.Time), o.DeviceLabel, o.RemoteID, time.Now().UTC())
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateCheckin
		}
		return fmt.Errorf("failed to insert orphan check-in for code %s: %w", o.EmployeeCode, err)
	}
	return nil
}

// LastCheckinTime returns the latest stored check-in time, resolved or
// orphan, for the device with the given alias.
func (db *DB) LastCheckinTime(ctx context.Context, alias string) (time.Time, bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	// Labels are "<serial> - <alias>". suffix() matches literally, so
	// aliases containing LIKE wildcards stay exact.
	tail := " - " + alias
	var last sql.NullTime
	err := db.conn.QueryRowContext(ctx, `SELECT MAX(t) FROM (
			SELECT MAX(time) AS t FROM employee_checkins WHERE suffix(device_id, ?)
			UNION ALL
			SELECT MAX(time) AS t FROM orphan_checkins WHERE suffix(device_id, ?)
		)`, tail, tail).Scan(&last)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to find last check-in for %s: %w", alias, err)
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	return last.Time.UTC(), true, nil
}

// ListOrphans returns unresolved orphan check-ins, oldest first.
func (db *DB) ListOrphans(ctx context.Context, limit, offset int) ([]models.StoredOrphan, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.QueryContext(ctx, `SELECT id, employee_code, employee_name, log_type, time, device_id, remote_id, created_at
		FROM orphan_checkins ORDER BY time, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphan check-ins: %w", err)
	}
	defer rows.Close()

	orphans := make([]models.StoredOrphan, 0)
	for rows.Next() {
		var (
			o            models.StoredOrphan
			name, device sql.NullString
			direction    string
			remoteID     sql.NullInt64
		)
		if err := rows.Scan(&o.ID, &o.EmployeeCode, &name, &direction, &o.Time, &device, &remoteID, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan orphan check-in: %w", err)
		}
		o.EmployeeName = name.String
		o.Direction = models.Direction(direction)
		o.DeviceLabel = device.String
		o.RemoteID = remoteID.Int64
		orphans = append(orphans, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orphan check-ins: %w", err)
	}
	return orphans, nil
}

// MoveOrphanToResolved converts an orphan into an employee check-in in one
// transaction. inserted is false when the employee already had a check-in
// with the same key; the orphan is removed either way.
func (db *DB) MoveOrphanToResolved(ctx context.Context, orphanID int64, employeeID, employeeName string) (inserted bool, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("move", "orphan_checkins", start, err) }()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	var (
		direction string
		ts        time.Time
		device    sql.NullString
		remoteID  sql.NullInt64
	)
	err = tx.QueryRowContext(ctx, `SELECT log_type, time, device_id, remote_id FROM orphan_checkins WHERE id = ?`, orphanID).
		Scan(&direction, &ts, &device, &remoteID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrOrphanNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to load orphan %d: %w", orphanID, err)
	}

	var exists bool
	if err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM employee_checkins WHERE employee_id = ? AND time = ? AND log_type = ?)`,
		employeeID, ts, direction).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check check-in existence: %w", err)
	}
	if !exists {
		if _, err = tx.ExecContext(ctx, `INSERT INTO employee_checkins
			(employee_id, employee_name, log_type, time, device_id, remote_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			employeeID, employeeName, direction, ts, device, remoteID, time.Now().UTC()); err != nil {
			return false, fmt.Errorf("failed to insert resolved check-in: %w", err)
		}
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM orphan_checkins WHERE id = ?`, orphanID); err != nil {
		return false, fmt.Errorf("failed to delete orphan %d: %w", orphanID, err)
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit orphan move: %w", err)
	}
	return !exists, nil
}

// UpdateCheckinDeviceLabel sets the device label of a stored check-in
// identified by its natural key. It reports whether a row was updated.
func (db *DB) UpdateCheckinDeviceLabel(ctx context.Context, key models.NaturalKey, label string) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	table, column := "employee_checkins", "employee_id"
	if key.Orphan {
		table, column = "orphan_checkins", "employee_code"
	}
	query := fmt.Sprintf(`UPDATE %s SET device_id = ? WHERE %s = ? AND time = ? AND log_type = ? AND COALESCE(device_id, '') <> ?`, table, column)
	res, err := db.conn.ExecContext(ctx, query, label, key.Identity, utc(key.Time), string(key.Direction), label)
	if err != nil {
		return false, fmt.Errorf("failed to update device label in %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// InsertFailedCheckin writes a record to the dead-letter table.
func (db *DB) InsertFailedCheckin(ctx context.Context, f *models.FailedCheckin) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("insert", "failed_checkins", start, err) }()

	if f.FailedAt.IsZero() {
		f.FailedAt = time.Now()
	}
	err = db.conn.QueryRowContext(ctx, `INSERT INTO failed_checkins
		(connector_id, remote_id, natural_key, reason, payload, failed_at, retry_count, cycle_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		f.ConnectorID, f.RemoteID, f.NaturalKey, f.Reason, f.Payload, utc(f.FailedAt), f.RetryCount, f.CycleID).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("failed to write dead-letter record: %w", err)
	}
	return nil
}

// ListFailedCheckins returns the most recent dead-letter records.
func (db *DB) ListFailedCheckins(ctx context.Context, limit int) ([]models.FailedCheckin, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.QueryContext(ctx, `SELECT id, connector_id, remote_id, natural_key, reason, payload, failed_at, retry_count, cycle_id
		FROM failed_checkins ORDER BY failed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead-letter records: %w", err)
	}
	defer rows.Close()

	out := make([]models.FailedCheckin, 0)
	for rows.Next() {
		var (
			f                     models.FailedCheckin
			remoteID              sql.NullInt64
			key, payload, cycleID sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.ConnectorID, &remoteID, &key, &f.Reason, &payload, &f.FailedAt, &f.RetryCount, &cycleID); err != nil {
			return nil, fmt.Errorf("failed to scan dead-letter record: %w", err)
		}
		f.RemoteID = remoteID.Int64
		f.NaturalKey = key.String
		f.Payload = payload.String
		f.CycleID = cycleID.String
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead-letter records: %w", err)
	}
	return out, nil
}
