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

const connectorColumns = `id, base_url, username, secret, bearer_token, enabled, strategy, page_size, updated_at`

// UpsertConnector creates or updates a connector. The stored token is kept
// on update; use SaveConnectorToken to change it.
func (db *DB) UpsertConnector(ctx context.Context, c *models.ConnectorConfig) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("upsert", "connectors", start, err) }()

	secret, err := db.seal(c.Secret)
	if err != nil {
		return fmt.Errorf("failed to encrypt connector secret: %w", err)
	}
	token, err := db.seal(c.BearerToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt connector token: %w", err)
	}
	c.UpdatedAt = time.Now().UTC()

	_, err = db.conn.ExecContext(ctx, `INSERT INTO connectors (`+connectorColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			base_url = excluded.base_url,
			username = excluded.username,
			secret = excluded.secret,
			enabled = excluded.enabled,
			strategy = excluded.strategy,
			page_size = excluded.page_size,
			updated_at = excluded.updated_at`,
		c.ID, c.BaseURL, c.Username, secret, token, c.Enabled, string(c.Strategy), c.PageSize, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert connector %s: %w", c.ID, err)
	}
	return nil
}

// GetConnector returns the connector with the given id.
func (db *DB) GetConnector(ctx context.Context, id string) (*models.ConnectorConfig, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, `SELECT `+connectorColumns+` FROM connectors WHERE id = ?`, id)
	c, err := db.scanConnector(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConnectorNotFound
	}
	return c, err
}

// GetEnabledConnector returns the single enabled connector. Zero or more
// than one enabled row is an error.
func (db *DB) GetEnabledConnector(ctx context.Context) (c *models.ConnectorConfig, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("select", "connectors", start, err) }()

	rows, err := db.conn.QueryContext(ctx, `SELECT `+connectorColumns+` FROM connectors WHERE enabled = true ORDER BY id LIMIT 2`)
	if err != nil {
		return nil, fmt.Errorf("failed to query connectors: %w", err)
	}
	defer rows.Close()

	var found []*models.ConnectorConfig
	for rows.Next() {
		c, err := db.scanConnector(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connectors: %w", err)
	}

	switch len(found) {
	case 0:
		return nil, ErrNoEnabledConnector
	case 1:
		return found[0], nil
	default:
		return nil, ErrMultipleEnabledConnectors
	}
}

// SaveConnectorToken stores a refreshed API token.
func (db *DB) SaveConnectorToken(ctx context.Context, id, token string) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("update", "connectors", start, err) }()

	sealed, err := db.seal(token)
	if err != nil {
		return fmt.Errorf("failed to encrypt connector token: %w", err)
	}
	res, err := db.conn.ExecContext(ctx, `UPDATE connectors SET bearer_token = ?, updated_at = ? WHERE id = ?`,
		sealed, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to save token for connector %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrConnectorNotFound
	}
	return nil
}

// DisableOtherConnectors disables every connector except keepID.
func (db *DB) DisableOtherConnectors(ctx context.Context, keepID string) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx, `UPDATE connectors SET enabled = false, updated_at = ? WHERE id <> ? AND enabled = true`,
		time.Now().UTC(), keepID)
	if err != nil {
		return 0, fmt.Errorf("failed to disable connectors: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (db *DB) scanConnector(row rowScanner) (*models.ConnectorConfig, error) {
	var (
		c                   models.ConnectorConfig
		strategy            string
		secret, sealedToken sql.NullString
	)
	err := row.Scan(&c.ID, &c.BaseURL, &c.Username, &secret, &sealedToken, &c.Enabled, &strategy, &c.PageSize, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan connector: %w", err)
	}

	if c.Strategy, err = models.ParseCursorStrategy(strategy); err != nil {
		return nil, fmt.Errorf("connector %s: %w", c.ID, err)
	}
	if c.Secret, err = db.unseal(secret.String); err != nil {
		return nil, fmt.Errorf("failed to decrypt secret for connector %s: %w", c.ID, err)
	}
	if c.BearerToken, err = db.unseal(sealedToken.String); err != nil {
		return nil, fmt.Errorf("failed to decrypt token for connector %s: %w", c.ID, err)
	}
	return &c, nil
}

func (db *DB) seal(v string) (string, error) {
	if db.encryptor == nil || v == "" {
		return v, nil
	}
	return db.encryptor.Encrypt(v)
}

func (db *DB) unseal(v string) (string, error) {
	if db.encryptor == nil || v == "" {
		return v, nil
	}
	return db.encryptor.Decrypt(v)
}
