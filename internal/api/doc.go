// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

/*
Package api serves the trigger API: a small JSON surface for starting sync
cycles and backfills, inspecting sync state, and running the maintenance
operations (device discovery, orphan reconciliation, label repair,
employee import).

# Routes

	GET  /api/v1/health                 database and last-success status
	POST /api/v1/sync                   run a manual cycle
	POST /api/v1/sync/backfill          run a backfill window on one device
	GET  /api/v1/sync/status            connector, checkpoint, last outcome
	GET  /api/v1/devices                registered terminals
	POST /api/v1/devices/discover       import terminals from BioTime
	POST /api/v1/devices/repair-labels  re-label stored check-ins
	GET  /api/v1/orphans                unresolved punches (limit, offset)
	POST /api/v1/orphans/reconcile      resolve orphans against the directory
	GET  /api/v1/employees              employee directory
	POST /api/v1/employees              import directory entries
	GET  /api/v1/dlq                    rejected check-ins
	GET  /metrics                       Prometheus exposition

Every response uses the models.APIResponse envelope. Errors carry a code:

	VALIDATION_ERROR   400  bad body or query
	CONFLICT           409  no enabled connector or bad sync configuration
	UPSTREAM_ERROR     502  BioTime rejected, failed, or returned garbage
	UNAVAILABLE        503  request canceled or timed out
	INTERNAL_ERROR     500  local storage failure

# Middleware

Global: request ID, access log, chi RealIP, chi Recoverer. The /api/v1
group adds httprate per-IP limiting and Prometheus request metrics.
*/
package api
