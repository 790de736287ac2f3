// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/clocksync/internal/database"
	"github.com/tomtom215/clocksync/internal/logging"
	"github.com/tomtom215/clocksync/internal/metrics"
	"github.com/tomtom215/clocksync/internal/models"
)

// CheckinStore is the part of the database the sink writes to.
type CheckinStore interface {
	CheckinExists(ctx context.Context, key models.NaturalKey) (bool, error)
	InsertCheckin(ctx context.Context, c *models.ResolvedCheckin) error
	InsertOrphan(ctx context.Context, o *models.OrphanCheckin) error
	InsertFailedCheckin(ctx context.Context, f *models.FailedCheckin) error
}

// EventPublisher receives an event for every inserted check-in.
type EventPublisher interface {
	PublishCheckin(ctx context.Context, ev *models.CheckinEvent) error
}

// Sink deduplicates and stores classified records for one cycle.
type Sink struct {
	store       CheckinStore
	publisher   EventPublisher
	cycleID     string
	connectorID string
}

// NewSink creates a sink. publisher may be nil.
func NewSink(store CheckinStore, publisher EventPublisher, cycleID, connectorID string) *Sink {
	return &Sink{store: store, publisher: publisher, cycleID: cycleID, connectorID: connectorID}
}

// Persist stores records in order, skipping any whose natural key already
// exists. An insert failure is dead-lettered and the batch continues. The
// returned error is non-nil only when the store cannot be reached, in which
// case the caller must not advance its checkpoint.
func (s *Sink) Persist(ctx context.Context, records []models.ClassifiedRecord) (models.SinkResult, error) {
	var res models.SinkResult
	for i := range records {
		rec := records[i]
		if err := ctx.Err(); err != nil {
			return res, err
		}

		key := rec.Key()
		exists, err := s.store.CheckinExists(ctx, key)
		if err != nil {
			return res, fmt.Errorf("%w: existence check for %s: %w", ErrPersistence, key, err)
		}
		if exists {
			res.Skipped++
			metrics.RecordSinkResult(rec.IsOrphan(), "skipped")
			continue
		}

		err = s.insert(ctx, rec)
		switch {
		case err == nil:
			res.Inserted++
			metrics.RecordSinkResult(rec.IsOrphan(), "inserted")
			s.publish(ctx, rec)
		case errors.Is(err, database.ErrDuplicateCheckin):
			// Inserted by someone else between the check and the insert.
			res.Skipped++
			metrics.RecordSinkResult(rec.IsOrphan(), "skipped")
		default:
			res.Failed++
			metrics.RecordSinkResult(rec.IsOrphan(), "failed")
			logging.Ctx(ctx).Error().Err(err).Str("key", key.String()).Int64("remote_id", rec.RemoteID()).Msg("Failed to insert check-in")
			if dlqErr := s.deadLetter(ctx, rec.RemoteID(), key.String(), fmt.Errorf("%w: %w", ErrPersistence, err), rec); dlqErr != nil {
				return res, dlqErr
			}
		}
	}
	return res, nil
}

// RecordFailure dead-letters a raw transaction that never made it to a
// classified record.
func (s *Sink) RecordFailure(ctx context.Context, raw *models.RawTransaction, cause error) error {
	logging.Ctx(ctx).Warn().Err(cause).Int64("remote_id", raw.ID).Msg("Dead-lettering unclassifiable transaction")
	return s.deadLetter(ctx, raw.ID, "", cause, raw)
}

func (s *Sink) insert(ctx context.Context, rec models.ClassifiedRecord) error {
	if rec.Orphan != nil {
		return s.store.InsertOrphan(ctx, rec.Orphan)
	}
	if rec.Resolved != nil {
		return s.store.InsertCheckin(ctx, rec.Resolved)
	}
	return errors.New("classified record has neither resolved nor orphan set")
}

func (s *Sink) deadLetter(ctx context.Context, remoteID int64, key string, cause error, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		body = []byte(fmt.Sprintf("%+v", payload))
	}
	entry := &models.FailedCheckin{
		ConnectorID: s.connectorID,
		RemoteID:    remoteID,
		NaturalKey:  key,
		Reason:      cause.Error(),
		Payload:     string(body),
		FailedAt:    time.Now(),
		CycleID:     s.cycleID,
	}
	if err := s.store.InsertFailedCheckin(ctx, entry); err != nil {
		return fmt.Errorf("%w: dead-letter write for remote id %d: %w", ErrPersistence, remoteID, err)
	}
	metrics.DLQEntries.WithLabelValues(dlqReason(cause)).Inc()
	return nil
}

func dlqReason(err error) string {
	switch {
	case errors.Is(err, ErrUnparseableTime):
		return "unparseable_time"
	case errors.Is(err, ErrPersistence):
		return "insert_failed"
	default:
		return "other"
	}
}

func (s *Sink) publish(ctx context.Context, rec models.ClassifiedRecord) {
	if s.publisher == nil {
		return
	}
	ev := models.NewCheckinEvent(rec, s.cycleID, s.connectorID)
	ev.PublishedAt = time.Now().UTC()
	if err := s.publisher.PublishCheckin(ctx, &ev); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("event_id", ev.EventID).Msg("Failed to publish check-in event")
	}
}
