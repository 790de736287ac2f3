// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package database

import (
	"errors"
	"io"
	"strings"

	"github.com/tomtom215/clocksync/internal/logging"
)

var (
	// ErrNoEnabledConnector is returned when no connector row is enabled.
	ErrNoEnabledConnector = errors.New("no enabled connector")

	// ErrMultipleEnabledConnectors is returned when more than one connector is enabled.
	ErrMultipleEnabledConnectors = errors.New("more than one connector is enabled")

	// ErrConnectorNotFound is returned for an unknown connector id.
	ErrConnectorNotFound = errors.New("connector not found")

	// ErrDuplicateCheckin is returned when an insert collides with an existing natural key.
	ErrDuplicateCheckin = errors.New("check-in already exists")

	// ErrOrphanNotFound is returned when an orphan row disappeared before it could be moved.
	ErrOrphanNotFound = errors.New("orphan check-in not found")
)

// closeWithLog closes a resource and logs any error.
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}

// closeQuietly closes a resource in an error path where the Close error is not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

// rollbackQuietly rolls back a transaction that may already be committed.
func rollbackQuietly(tx interface{ Rollback() error }) {
	_ = tx.Rollback()
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// DuckDB reports "Constraint Error: Duplicate key ..." for PRIMARY KEY and UNIQUE violations.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
