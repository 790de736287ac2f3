// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package models

import "time"

// Check-in event kinds.
const (
	EventKindResolved = "resolved"
	EventKindOrphan   = "orphan"
)

// CheckinEvent is published on the event bus for every inserted check-in.
// EventID is derived from the natural key so redeliveries deduplicate.
type CheckinEvent struct {
	EventID      string    `json:"event_id"`
	Kind         string    `json:"kind"`
	CycleID      string    `json:"cycle_id"`
	ConnectorID  string    `json:"connector_id"`
	EmployeeID   string    `json:"employee_id,omitempty"`
	EmployeeCode string    `json:"employee_code,omitempty"`
	EmployeeName string    `json:"employee_name"`
	Direction    Direction `json:"direction"`
	Time         time.Time `json:"time"`
	DeviceLabel  string    `json:"device_label"`
	RemoteID     int64     `json:"remote_id"`
	PublishedAt  time.Time `json:"published_at"`
}

// NewCheckinEvent builds the event for an inserted record.
func NewCheckinEvent(rec ClassifiedRecord, cycleID, connectorID string) CheckinEvent {
	ev := CheckinEvent{
		EventID:     rec.Key().String(),
		CycleID:     cycleID,
		ConnectorID: connectorID,
	}
	switch {
	case rec.Orphan != nil:
		o := rec.Orphan
		ev.Kind = EventKindOrphan
		ev.EmployeeCode = o.EmployeeCode
		ev.EmployeeName = o.EmployeeName
		ev.Direction = o.Direction
		ev.Time = o.Time
		ev.DeviceLabel = o.DeviceLabel
		ev.RemoteID = o.RemoteID
	case rec.Resolved != nil:
		r := rec.Resolved
		ev.Kind = EventKindResolved
		ev.EmployeeID = r.EmployeeID
		ev.EmployeeName = r.EmployeeName
		ev.Direction = r.Direction
		ev.Time = r.Time
		ev.DeviceLabel = r.DeviceLabel
		ev.RemoteID = r.RemoteID
	}
	return ev
}
