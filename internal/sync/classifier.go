// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/clocksync/internal/biotime"
	"github.com/tomtom215/clocksync/internal/logging"
	"github.com/tomtom215/clocksync/internal/metrics"
	"github.com/tomtom215/clocksync/internal/models"
)

// IdentityResolver maps a device enrollment code to an internal employee.
type IdentityResolver interface {
	FindInternalID(ctx context.Context, code string) (id, name string, found bool, err error)
}

// punchLabels maps lowercased punch_state_display values to directions.
var punchLabels = map[string]models.Direction{
	"check in":     models.DirectionIn,
	"break in":     models.DirectionIn,
	"overtime in":  models.DirectionIn,
	"check out":    models.DirectionOut,
	"break out":    models.DirectionOut,
	"overtime out": models.DirectionOut,
}

// DirectionFromLabel maps a punch label to IN or OUT. Unknown labels map to
// OUT and report ok=false.
func DirectionFromLabel(label string) (dir models.Direction, ok bool) {
	dir, ok = punchLabels[strings.ToLower(strings.TrimSpace(label))]
	if !ok {
		return models.DirectionOut, false
	}
	return dir, true
}

// NormalizeCode strips non-digits and leading zeros from a device code.
func NormalizeCode(code string) string {
	return models.NormalizeDeviceCode(code)
}

// Classifier turns raw transactions into resolved or orphan check-ins.
// Given the same employee directory it always returns the same result.
type Classifier struct {
	identity IdentityResolver
	loc      *time.Location
}

// NewClassifier creates a classifier. loc interprets the server's naive
// punch times.
func NewClassifier(identity IdentityResolver, loc *time.Location) *Classifier {
	if loc == nil {
		loc = time.Local
	}
	return &Classifier{identity: identity, loc: loc}
}

// Classify maps one raw transaction. It returns ErrUnparseableTime for a bad
// punch_time and ErrPersistence when the directory lookup fails.
func (c *Classifier) Classify(ctx context.Context, raw *models.RawTransaction) (models.ClassifiedRecord, error) {
	ts, err := biotime.ParseTime(raw.PunchTime, c.loc)
	if err != nil {
		return models.ClassifiedRecord{}, fmt.Errorf("%w: transaction %d: %q", ErrUnparseableTime, raw.ID, raw.PunchTime)
	}

	dir, known := DirectionFromLabel(raw.PunchStateDisplay)
	if !known {
		metrics.UnknownPunchLabels.Inc()
		logging.Ctx(ctx).Warn().
			Int64("remote_id", raw.ID).
			Str("label", raw.PunchStateDisplay).
			Msg("Unknown punch label, recording as OUT")
	}

	code := strings.TrimSpace(raw.EmpCode)
	id, name, found, err := c.identity.FindInternalID(ctx, code)
	if err != nil {
		return models.ClassifiedRecord{}, fmt.Errorf("%w: identity lookup for %q: %w", ErrPersistence, code, err)
	}

	if !found {
		return models.ClassifiedRecord{Orphan: &models.OrphanCheckin{
			EmployeeCode: code,
			EmployeeName: raw.FullName(),
			Direction:    dir,
			Time:         ts,
			DeviceLabel:  raw.DeviceLabel(),
			RemoteID:     raw.ID,
		}}, nil
	}

	if name == "" {
		name = raw.FullName()
	}
	return models.ClassifiedRecord{Resolved: &models.ResolvedCheckin{
		EmployeeID:   id,
		EmployeeName: name,
		Direction:    dir,
		Time:         ts,
		DeviceLabel:  raw.DeviceLabel(),
		RemoteID:     raw.ID,
	}}, nil
}
