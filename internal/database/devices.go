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

const deviceColumns = `remote_id, name, serial_number, alias, ip_address, area_label, last_activity, last_sync_request, created_at`

// UpsertDevice stores a discovered terminal keyed by its remote id.
// created reports whether the device was new.
func (db *DB) UpsertDevice(ctx context.Context, d *models.Device) (created bool, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("upsert", "devices", start, err) }()

	var exists bool
	if err = db.conn.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM devices WHERE remote_id = ?)`, d.RemoteID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check device %d: %w", d.RemoteID, err)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	_, err = db.conn.ExecContext(ctx, `INSERT INTO devices (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (remote_id) DO UPDATE SET
			name = excluded.name,
			serial_number = excluded.serial_number,
			alias = excluded.alias,
			ip_address = excluded.ip_address,
			area_label = excluded.area_label,
			last_activity = excluded.last_activity,
			last_sync_request = COALESCE(excluded.last_sync_request, last_sync_request)`,
		d.RemoteID, d.Name, d.SerialNumber, d.Alias, d.IPAddress, d.AreaLabel,
		optionalTime(d.LastActivity), optionalTime(d.LastSyncRequest), utc(d.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to upsert device %d: %w", d.RemoteID, err)
	}
	return !exists, nil
}

// ListDevices returns all known devices ordered by alias.
func (db *DB) ListDevices(ctx context.Context) ([]models.Device, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY alias, remote_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	devices := make([]models.Device, 0)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}
	return devices, nil
}

// GetDeviceByAlias returns the device with the given alias, or nil if unknown.
func (db *DB) GetDeviceByAlias(ctx context.Context, alias string) (*models.Device, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE alias = ? ORDER BY remote_id LIMIT 1`, alias)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// UpdateDeviceSyncRequest records when the device was last synced.
func (db *DB) UpdateDeviceSyncRequest(ctx context.Context, alias string, at time.Time) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, `UPDATE devices SET last_sync_request = ? WHERE alias = ?`, utc(at), alias); err != nil {
		return fmt.Errorf("failed to update sync time for device %s: %w", alias, err)
	}
	return nil
}

func scanDevice(row rowScanner) (*models.Device, error) {
	var (
		d                         models.Device
		name, ip, area            sql.NullString
		lastActivity, lastRequest sql.NullTime
	)
	if err := row.Scan(&d.RemoteID, &name, &d.SerialNumber, &d.Alias, &ip, &area, &lastActivity, &lastRequest, &d.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan device: %w", err)
	}
	d.Name = name.String
	d.IPAddress = ip.String
	d.AreaLabel = area.String
	if lastActivity.Valid {
		t := lastActivity.Time.UTC()
		d.LastActivity = &t
	}
	if lastRequest.Valid {
		t := lastRequest.Time.UTC()
		d.LastSyncRequest = &t
	}
	return &d, nil
}
