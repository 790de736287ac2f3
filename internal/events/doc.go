// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

// Package events publishes check-in events on a Watermill message bus.
//
// Every check-in the sync engine inserts (resolved or orphan) becomes one
// CheckinEvent. Downstream consumers such as payroll exports, dashboards or
// alerting subscribe to the topic instead of polling the database.
//
// # Transports
//
// Two transports are supported, selected by config.NATSConfig.Enabled:
//
//   - NATS JetStream (watermill-nats): durable, shared with other services.
//     The stream is created or updated on startup by StreamInitializer.
//   - In-process GoChannel: used when NATS is disabled. A Tap logs each
//     event so the bus is still observable in single-binary deployments.
//
// # Deduplication
//
// The event ID is the record's natural key. It is sent as the Nats-Msg-Id
// header so JetStream drops redeliveries inside the stream's duplicate
// window, for example when a cycle is retried after a partial failure.
//
// # Failure Handling
//
// Publishing is best effort from the sync engine's point of view: the
// check-in row is already committed when the event is sent. A circuit
// breaker stops hammering an unreachable broker, and every attempt is
// counted in clocksync_events_published_total.
package events
