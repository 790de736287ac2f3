// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

// Package checkpoint persists per-connector sync progress in BadgerDB.
//
// A checkpoint records how far a connector has been synchronized: the
// highest remote id seen, the page cursor, the end of the last date window
// and a per-device window end. Commits are monotonic; a commit that would
// move any of those positions backwards is rejected with
// ErrCheckpointRegression. Reset is the only way to rewind.
//
// Values are stored as JSON under the key "checkpoint:<connector id>".
package checkpoint
