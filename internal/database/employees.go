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
	"strings"
	"time"

	"github.com/tomtom215/clocksync/internal/logging"
	"github.com/tomtom215/clocksync/internal/models"
)

const (
	statusActive   = "Active"
	statusInactive = "Inactive"
)

// FindEmployee resolves a device enrollment code to an active employee.
// An exact device_code match wins; otherwise the digits of the code, with
// leading zeros dropped, are compared.
func (db *DB) FindEmployee(ctx context.Context, code string) (id, name string, found bool, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("select", "employees", start, err) }()

	code = strings.TrimSpace(code)
	if code == "" {
		return "", "", false, nil
	}

	err = db.conn.QueryRowContext(ctx, `SELECT employee_id, employee_name FROM employees
		WHERE device_code = ? AND status = ? ORDER BY employee_id LIMIT 1`, code, statusActive).Scan(&id, &name)
	if err == nil {
		return id, name, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", "", false, fmt.Errorf("failed to look up employee by code: %w", err)
	}

	normalized := models.NormalizeDeviceCode(code)
	if normalized == "" {
		return "", "", false, nil
	}
	rows, err := db.conn.QueryContext(ctx, `SELECT employee_id, employee_name FROM employees
		WHERE device_code_normalized = ? AND status = ? ORDER BY employee_id LIMIT 2`, normalized, statusActive)
	if err != nil {
		return "", "", false, fmt.Errorf("failed to look up employee by normalized code: %w", err)
	}
	defer rows.Close()

	matches := 0
	for rows.Next() {
		var mid, mname string
		if err := rows.Scan(&mid, &mname); err != nil {
			return "", "", false, fmt.Errorf("failed to scan employee: %w", err)
		}
		if matches == 0 {
			id, name = mid, mname
		}
		matches++
	}
	if err := rows.Err(); err != nil {
		return "", "", false, fmt.Errorf("error iterating employees: %w", err)
	}
	if matches > 1 {
		logging.Ctx(ctx).Warn().Str("code", code).Str("normalized", normalized).Str("chosen", id).Msg("Device code matches several employees after normalization")
	}
	return id, name, matches > 0, nil
}

// UpsertEmployees imports directory entries in one transaction and returns
// the number of rows written.
func (db *DB) UpsertEmployees(ctx context.Context, employees []models.Employee) (n int, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("upsert", "employees", start, err) }()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO employees
		(employee_id, employee_name, device_code, device_code_normalized, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (employee_id) DO UPDATE SET
			employee_name = excluded.employee_name,
			device_code = excluded.device_code,
			device_code_normalized = excluded.device_code_normalized,
			status = excluded.status,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare employee upsert: %w", err)
	}
	defer closeWithLog(stmt, "prepared statement")

	now := time.Now().UTC()
	for i := range employees {
		e := &employees[i]
		status := statusInactive
		if e.Active {
			status = statusActive
		}
		code := strings.TrimSpace(e.DeviceCode)
		if _, err = stmt.ExecContext(ctx, e.EmployeeID, e.EmployeeName, code, models.NormalizeDeviceCode(code), status, now); err != nil {
			return 0, fmt.Errorf("failed to upsert employee %s: %w", e.EmployeeID, err)
		}
		e.UpdatedAt = now
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit employee import: %w", err)
	}
	return len(employees), nil
}

// ListEmployees returns the directory ordered by employee id.
func (db *DB) ListEmployees(ctx context.Context) ([]models.Employee, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `SELECT employee_id, employee_name, device_code, status, updated_at FROM employees ORDER BY employee_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	out := make([]models.Employee, 0)
	for rows.Next() {
		var (
			e      models.Employee
			status string
		)
		if err := rows.Scan(&e.EmployeeID, &e.EmployeeName, &e.DeviceCode, &status, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		e.Active = status == statusActive
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating employees: %w", err)
	}
	return out, nil
}
