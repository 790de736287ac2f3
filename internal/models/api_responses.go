// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package models

import "time"

// APIResponse is the envelope for every trigger API response.
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata accompanies every response.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// BackfillRequest asks for a one-off sync of an explicit window on one
// device. It never moves the scheduled checkpoint.
type BackfillRequest struct {
	Start           time.Time `json:"start" validate:"required"`
	End             time.Time `json:"end" validate:"required,gtfield=Start"`
	DeviceAlias     string    `json:"device_alias" validate:"required,max=100"`
	ResetCheckpoint bool      `json:"reset_checkpoint"`
}

// EmployeeImportRequest loads entries into the employee directory.
type EmployeeImportRequest struct {
	Employees []Employee `json:"employees" validate:"required,min=1,max=10000,dive"`
}

// SyncStatus is returned by the status endpoint.
type SyncStatus struct {
	ConnectorID string          `json:"connector_id"`
	Strategy    CursorStrategy  `json:"strategy"`
	Running     bool            `json:"running"`
	LastOutcome *CycleOutcome   `json:"last_outcome,omitempty"`
	Checkpoint  *SyncCheckpoint `json:"checkpoint,omitempty"`
}

// ReconcileResult reports an orphan reconciliation pass.
type ReconcileResult struct {
	Examined int `json:"examined"`
	Resolved int `json:"resolved"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// DiscoveryResult reports a terminal discovery pass.
type DiscoveryResult struct {
	Discovered int      `json:"discovered"`
	Created    int      `json:"created"`
	Updated    int      `json:"updated"`
	Devices    []Device `json:"devices"`
}

// RepairRequest re-labels stored check-ins in a window with the device
// label the remote service reports for them now.
type RepairRequest struct {
	Start       time.Time `json:"start" validate:"required"`
	End         time.Time `json:"end" validate:"required,gtfield=Start"`
	DeviceAlias string    `json:"device_alias" validate:"omitempty,max=100"`
}

// RepairResult reports a device label repair pass.
type RepairResult struct {
	Examined  int `json:"examined"`
	Relabeled int `json:"relabeled"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// HealthStatus is returned by the health endpoint.
type HealthStatus struct {
	Status            string           `json:"status"`
	Version           string           `json:"version"`
	DatabaseConnected bool             `json:"database_connected"`
	LastSyncTime      *time.Time       `json:"last_sync_time,omitempty"`
	Uptime            float64          `json:"uptime_seconds"`
	Counts            map[string]int64 `json:"counts,omitempty"`
}
