// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package models

import (
	"errors"
	"time"
)

// SinkResult counts what the persistence sink did with a batch.
type SinkResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Add accumulates another batch result.
func (r *SinkResult) Add(o SinkResult) {
	r.Inserted += o.Inserted
	r.Skipped += o.Skipped
	r.Failed += o.Failed
}

// CycleState is a sync orchestrator state.
type CycleState string

const (
	StateIdle                 CycleState = "idle"
	StateAcquiringToken       CycleState = "acquiring_token"
	StateFetching             CycleState = "fetching"
	StateClassifying          CycleState = "classifying"
	StatePersisting           CycleState = "persisting"
	StateCommittingCheckpoint CycleState = "committing_checkpoint"
	StateRetrying             CycleState = "retrying"
	StateFailed               CycleState = "failed"
)

// TriggerKind identifies what started a cycle.
type TriggerKind string

const (
	TriggerScheduled TriggerKind = "scheduled"
	TriggerManual    TriggerKind = "manual"
	TriggerBackfill  TriggerKind = "backfill"
)

// Trigger carries the parameters for one cycle. Backfill triggers must set
// Start, End, and DeviceAlias. ResetCheckpoint clears the connector's
// checkpoint before a backfill runs.
type Trigger struct {
	Kind            TriggerKind
	Start           time.Time
	End             time.Time
	DeviceAlias     string
	ResetCheckpoint bool
}

// Validate checks that a backfill trigger carries its window.
func (t Trigger) Validate() error {
	if t.Kind != TriggerBackfill {
		return nil
	}
	if t.DeviceAlias == "" {
		return errors.New("backfill requires a device alias")
	}
	if t.Start.IsZero() || t.End.IsZero() || !t.End.After(t.Start) {
		return errors.New("backfill requires start before end")
	}
	return nil
}

// CycleOutcome is the audit record of one sync cycle.
type CycleOutcome struct {
	CycleID        string         `json:"cycle_id"`
	ConnectorID    string         `json:"connector_id"`
	Trigger        TriggerKind    `json:"trigger"`
	Strategy       CursorStrategy `json:"strategy"`
	State          CycleState     `json:"state"`
	Fetched        int            `json:"fetched"`
	Resolved       int            `json:"resolved"`
	Orphaned       int            `json:"orphaned"`
	Inserted       int            `json:"inserted"`
	Skipped        int            `json:"skipped"`
	Failed         int            `json:"failed"`
	MalformedPages int            `json:"malformed_pages"`
	Attempts       int            `json:"attempts"`
	TokenRefreshed bool           `json:"token_refreshed"`
	Checkpoint     SyncCheckpoint `json:"checkpoint"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
	Error          string         `json:"error,omitempty"`

	Err error `json:"-"`
}

// AddSink folds a sink result into the outcome counters.
func (o *CycleOutcome) AddSink(r SinkResult) {
	o.Inserted += r.Inserted
	o.Skipped += r.Skipped
	o.Failed += r.Failed
}

// Duration is the wall time of the cycle.
func (o *CycleOutcome) Duration() time.Duration {
	if o.FinishedAt.IsZero() {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}
