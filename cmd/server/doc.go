// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

/*
Command clocksync pulls punch records from a BioTime time-clock server into a
local DuckDB attendance store.

# Commands

	clocksync serve                     scheduled sync plus the trigger API
	clocksync sync                      run one cycle and exit
	clocksync backfill --device Gate \
	    --start 2026-03-01T00:00:00Z --end 2026-03-02T00:00:00Z [--reset]
	clocksync discover                  import the terminal list
	clocksync reconcile [--batch 500]   resolve orphans against the directory

The one-shot commands print the result as JSON and exit non-zero on
failure. They take the connector lock like any other cycle, so running one
next to a serving process is safe.

# Startup

 1. Configuration: Koanf v2 (defaults, config file, environment)
 2. Logging: zerolog
 3. DuckDB store, with connector credentials sealed when
    SECURITY_ENCRYPTION_KEY is set
 4. BadgerDB checkpoint store
 5. Connector row seeded from BIOTIME_* settings; other connectors disabled
 6. Event publisher: NATS JetStream when NATS_ENABLED, else in-process
 7. Sync manager

serve then runs the suture tree:

	RootSupervisor ("clocksync")
	├── storage-layer: CheckpointGCService
	├── sync-layer:    SyncService, events.Tap (in-process bus only)
	└── api-layer:     HTTPServerService

SIGINT and SIGTERM cancel the root context. The running cycle stops at its
next fetch boundary, keeping the checkpoint of everything already stored.
*/
package main
