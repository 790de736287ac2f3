// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package sync

import (
	"context"
	"errors"

	"github.com/tomtom215/clocksync/internal/biotime"
	"github.com/tomtom215/clocksync/internal/checkpoint"
)

var (
	// ErrConfiguration means a cycle cannot start: no enabled connector,
	// more than one, or an invalid trigger.
	ErrConfiguration = errors.New("sync configuration error")

	// ErrPersistence wraps failures of the local check-in store.
	ErrPersistence = errors.New("persistence error")

	// ErrUnparseableTime marks a punch whose punch_time could not be parsed.
	ErrUnparseableTime = errors.New("unparseable punch time")
)

// errorType buckets an error for the cycle error metric.
func errorType(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, biotime.ErrAuthentication):
		return "authentication"
	case errors.Is(err, biotime.ErrRemoteUnavailable):
		return "remote_unavailable"
	case errors.Is(err, biotime.ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, biotime.ErrFatal):
		return "remote_rejected"
	case errors.Is(err, checkpoint.ErrCheckpointRegression):
		return "checkpoint_regression"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "unknown"
	}
}
