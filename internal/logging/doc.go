// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

// Package logging provides the process-wide zerolog logger for Clocksync.
//
// All packages log through this package rather than holding their own
// loggers, so a single Init call controls level and format everywhere:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("connector_id", id).Msg("Sync cycle started")
//
// Sync cycles carry a correlation ID in their context. Use Ctx to get a
// logger with that ID attached:
//
//	ctx = logging.ContextWithCorrelationID(ctx, cycleID)
//	logging.Ctx(ctx).Warn().Err(err).Msg("Page skipped")
//
// Libraries that expect log/slog (suture, watermill) get a zerolog-backed
// handler from NewSlogLogger.
package logging
