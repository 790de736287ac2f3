// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

/*
Package services adapts clocksync components to suture.Service.

  - HTTPServerService: ListenAndServe/Shutdown to Serve
  - SyncService: sync.Manager Start/Stop to Serve
  - CheckpointGCService: ticker loop over checkpoint.Store.RunValueLogGC

Each wrapper returns ctx.Err() on a clean shutdown and a wrapped error on
failure, which suture treats as a restart.
*/
package services
