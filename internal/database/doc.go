// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

/*
Package database provides DuckDB-backed storage for synchronized attendance
data.

Tables:
  - employees: the identity directory (device_code to employee_id)
  - employee_checkins: check-ins resolved to an employee
  - orphan_checkins: check-ins whose device code matched no employee
  - failed_checkins: dead-letter queue for records that could not be stored
  - devices: terminals discovered on the time-clock service
  - connectors: time-clock connection settings and the current API token

Unique indexes on the natural keys of both check-in tables back up the
sink's existence check, so a record can never be stored twice even when two
writers race.

Connector secrets and tokens are encrypted at rest when a
config.CredentialEncryptor is attached with SetEncryptor.

All methods accept a context; calls without a deadline are bounded at 30
seconds by ensureContext.
*/
package database
