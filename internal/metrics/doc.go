// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

// Package metrics exposes Prometheus collectors for Clocksync.
//
// Collectors are registered on the default registry through promauto and
// served by the trigger API at /metrics. Callers use the Record* helpers
// rather than touching collectors directly so label values stay consistent.
package metrics
