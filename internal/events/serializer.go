// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package events

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/clocksync/internal/models"
)

// ErrInvalidEvent is returned for events missing required fields.
var ErrInvalidEvent = errors.New("invalid check-in event")

// Validate checks the fields every consumer relies on.
func Validate(ev *models.CheckinEvent) error {
	switch {
	case ev == nil:
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	case ev.EventID == "":
		return fmt.Errorf("%w: event_id is required", ErrInvalidEvent)
	case ev.Kind != models.EventKindResolved && ev.Kind != models.EventKindOrphan:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, ev.Kind)
	case ev.Kind == models.EventKindResolved && ev.EmployeeID == "":
		return fmt.Errorf("%w: resolved event without employee_id", ErrInvalidEvent)
	case ev.Kind == models.EventKindOrphan && ev.EmployeeCode == "":
		return fmt.Errorf("%w: orphan event without employee_code", ErrInvalidEvent)
	case ev.Time.IsZero():
		return fmt.Errorf("%w: time is required", ErrInvalidEvent)
	}
	return nil
}

// Marshal validates and encodes an event.
func Marshal(ev *models.CheckinEvent) ([]byte, error) {
	if err := Validate(ev); err != nil {
		return nil, err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// Unmarshal decodes an event.
func Unmarshal(data []byte) (*models.CheckinEvent, error) {
	var ev models.CheckinEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return &ev, nil
}
