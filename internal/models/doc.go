// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

// Package models defines the data structures shared by the sync engine,
// the storage layer, and the trigger API.
//
// Record flow:
//
//	RawTransaction (remote, immutable)
//	    -> ClassifiedRecord (ResolvedCheckin | OrphanCheckin)
//	    -> SinkResult counts
//	    -> SyncCheckpoint (committed after persistence)
//
// Types here carry no behavior beyond small helpers and hold no references
// to storage or transport.
package models
