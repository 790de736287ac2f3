// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package models

import (
	"fmt"
	"time"
)

// Direction is the binary punch vocabulary.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// RawTransaction is one record from the transactions endpoint, as received.
type RawTransaction struct {
	ID                int64  `json:"id"`
	EmpCode           string `json:"emp_code"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Department        string `json:"department"`
	Position          string `json:"position"`
	TerminalSN        string `json:"terminal_sn"`
	TerminalAlias     string `json:"terminal_alias"`
	PunchTime         string `json:"punch_time"`
	PunchStateDisplay string `json:"punch_state_display"`
}

// FullName joins first and last name, skipping empty parts.
func (r *RawTransaction) FullName() string {
	switch {
	case r.FirstName == "":
		return r.LastName
	case r.LastName == "":
		return r.FirstName
	default:
		return r.FirstName + " " + r.LastName
	}
}

// DeviceLabel is the "<serial> - <alias>" label stored with each check-in.
func (r *RawTransaction) DeviceLabel() string {
	return fmt.Sprintf("%s - %s", r.TerminalSN, r.TerminalAlias)
}

// ResolvedCheckin is a punch whose device code matched an internal employee.
type ResolvedCheckin struct {
	EmployeeID   string    `json:"employee_id"`
	EmployeeName string    `json:"employee_name"`
	Direction    Direction `json:"direction"`
	Time         time.Time `json:"time"`
	DeviceLabel  string    `json:"device_label"`
	RemoteID     int64     `json:"remote_id"`
}

// OrphanCheckin keeps a punch whose device code could not be resolved, keyed
// by that code, so it can be reconciled later.
type OrphanCheckin struct {
	EmployeeCode string    `json:"employee_code"`
	EmployeeName string    `json:"employee_name"`
	Direction    Direction `json:"direction"`
	Time         time.Time `json:"time"`
	DeviceLabel  string    `json:"device_label"`
	RemoteID     int64     `json:"remote_id"`
}

// ClassifiedRecord holds exactly one of Resolved or Orphan.
type ClassifiedRecord struct {
	Resolved *ResolvedCheckin
	Orphan   *OrphanCheckin
}

// IsOrphan reports whether the record failed identity resolution.
func (c ClassifiedRecord) IsOrphan() bool {
	return c.Orphan != nil
}

// RemoteID returns the originating transaction id.
func (c ClassifiedRecord) RemoteID() int64 {
	if c.Orphan != nil {
		return c.Orphan.RemoteID
	}
	if c.Resolved != nil {
		return c.Resolved.RemoteID
	}
	return 0
}

// Key returns the natural dedup key.
func (c ClassifiedRecord) Key() NaturalKey {
	if c.Orphan != nil {
		return NaturalKey{Identity: c.Orphan.EmployeeCode, Time: c.Orphan.Time, Direction: c.Orphan.Direction, Orphan: true}
	}
	if c.Resolved != nil {
		return NaturalKey{Identity: c.Resolved.EmployeeID, Time: c.Resolved.Time, Direction: c.Resolved.Direction}
	}
	return NaturalKey{}
}

// NaturalKey identifies a check-in for deduplication:
// (employee id or raw device code, time, direction).
type NaturalKey struct {
	Identity  string
	Time      time.Time
	Direction Direction
	Orphan    bool
}

func (k NaturalKey) String() string {
	kind := "employee"
	if k.Orphan {
		kind = "code"
	}
	return fmt.Sprintf("%s:%s@%s/%s", kind, k.Identity, k.Time.UTC().Format(time.RFC3339), k.Direction)
}

// FailedCheckin is a dead-letter entry for a record that could not be
// classified or inserted.
type FailedCheckin struct {
	ID          int64     `json:"id"`
	ConnectorID string    `json:"connector_id"`
	RemoteID    int64     `json:"remote_id"`
	NaturalKey  string    `json:"natural_key"`
	Reason      string    `json:"reason"`
	Payload     string    `json:"payload"`
	FailedAt    time.Time `json:"failed_at"`
	RetryCount  int       `json:"retry_count"`
	CycleID     string    `json:"cycle_id,omitempty"`
}

// StoredOrphan is an orphan check-in row awaiting reconciliation.
type StoredOrphan struct {
	ID int64 `json:"id"`
	OrphanCheckin
	CreatedAt time.Time `json:"created_at"`
}
