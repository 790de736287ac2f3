// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package sync

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/clocksync/internal/config"
	"github.com/tomtom215/clocksync/internal/database"
	"github.com/tomtom215/clocksync/internal/models"
)

// testDBSemaphore serializes DuckDB use across tests in this package.
var testDBSemaphore = make(chan struct{}, 1)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	type result struct {
		db  *database.DB
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 2})
		resultCh <- result{db: db, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			t.Fatalf("Failed to create test database: %v", res.err)
		}
		t.Cleanup(func() { _ = res.db.Close() })
		return res.db
	case <-time.After(120 * time.Second):
		t.Fatalf("Timeout: database creation took longer than 120s")
		return nil
	}
}

// threeRecordBatch classifies two punches by a known employee and one by an
// unknown device code.
func threeRecordBatch(t *testing.T, identity IdentityResolver) []models.ClassifiedRecord {
	t.Helper()
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	raws := []models.RawTransaction{
		punch(1, "1001", "Check In", "Gate", at),
		punch(2, "1001", "Check Out", "Gate", at.Add(8*time.Hour)),
		punch(3, "9999", "Check In", "Gate", at.Add(5*time.Minute)),
	}
	c := NewClassifier(identity, time.UTC)
	out := make([]models.ClassifiedRecord, 0, len(raws))
	for i := range raws {
		rec, err := c.Classify(context.Background(), &raws[i])
		if err != nil {
			t.Fatalf("Classify() error = %v", err)
		}
		out = append(out, rec)
	}
	return out
}

func TestSink_ThreeRecordScenario_DuckDB(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.UpsertEmployees(ctx, []models.Employee{{EmployeeID: "EMP-1", EmployeeName: "Ada", DeviceCode: "1001", Active: true}}); err != nil {
		t.Fatalf("UpsertEmployees() error = %v", err)
	}
	batch := threeRecordBatch(t, NewCachedIdentity(db, 16, time.Minute))

	resolved, orphaned := 0, 0
	for _, rec := range batch {
		if rec.IsOrphan() {
			orphaned++
		} else {
			resolved++
		}
	}
	if resolved != 2 || orphaned != 1 {
		t.Fatalf("classified %d resolved, %d orphan; want 2, 1", resolved, orphaned)
	}

	pub := &recordingPublisher{}
	sink := NewSink(db, pub, "cycle-1", "default")

	res, err := sink.Persist(ctx, batch)
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if res != (models.SinkResult{Inserted: 3}) {
		t.Errorf("first Persist() = %+v, want {inserted: 3}", res)
	}
	first, err := db.GetRecordCounts(ctx)
	if err != nil {
		t.Fatalf("GetRecordCounts() error = %v", err)
	}

	// Re-running the identical batch changes nothing.
	res, err = sink.Persist(ctx, batch)
	if err != nil {
		t.Fatalf("second Persist() error = %v", err)
	}
	if res != (models.SinkResult{Skipped: 3}) {
		t.Errorf("second Persist() = %+v, want {skipped: 3}", res)
	}
	second, err := db.GetRecordCounts(ctx)
	if err != nil {
		t.Fatalf("GetRecordCounts() error = %v", err)
	}
	if first != second {
		t.Errorf("stored state changed: %+v -> %+v", first, second)
	}
	if second.Checkins != 2 || second.Orphans != 1 {
		t.Errorf("counts = %+v, want 2 check-ins and 1 orphan", second)
	}
	if pub.count() != 3 {
		t.Errorf("published %d events, want 3", pub.count())
	}
}

func TestSink_Persist(t *testing.T) {
	t.Parallel()

	t.Run("idempotent in memory", func(t *testing.T) {
		t.Parallel()
		store := newMemStore(models.StrategyNumericID)
		store.addEmployee("EMP-1", "Ada", "1001")
		batch := threeRecordBatch(t, store)
		sink := NewSink(store, nil, "c", "default")

		if res, err := sink.Persist(context.Background(), batch); err != nil || res.Inserted != 3 {
			t.Fatalf("Persist() = %+v, %v", res, err)
		}
		if res, err := sink.Persist(context.Background(), batch); err != nil || res != (models.SinkResult{Skipped: 3}) {
			t.Fatalf("Persist() again = %+v, %v", res, err)
		}
	})

	t.Run("insert failure is dead-lettered and batch continues", func(t *testing.T) {
		t.Parallel()
		store := newMemStore(models.StrategyNumericID)
		store.addEmployee("EMP-1", "Ada", "1001")
		batch := threeRecordBatch(t, store)
		badKey := batch[1].Key()
		store.insertErr = func(key models.NaturalKey) error {
			if key == badKey {
				return errors.New("constraint violated")
			}
			return nil
		}

		res, err := NewSink(store, nil, "cycle-7", "default").Persist(context.Background(), batch)
		if err != nil {
			t.Fatalf("Persist() error = %v", err)
		}
		if res != (models.SinkResult{Inserted: 2, Failed: 1}) {
			t.Errorf("Persist() = %+v", res)
		}
		if len(store.failed) != 1 {
			t.Fatalf("dead letters = %d, want 1", len(store.failed))
		}
		f := store.failed[0]
		if f.RemoteID != 2 || f.CycleID != "cycle-7" || f.NaturalKey != badKey.String() || f.ConnectorID != "default" {
			t.Errorf("dead letter = %+v", f)
		}
		if !strings.Contains(f.Reason, "constraint violated") || !strings.Contains(f.Payload, `"remote_id":2`) {
			t.Errorf("dead letter reason/payload = %q / %q", f.Reason, f.Payload)
		}
	})

	t.Run("duplicate on insert counts as skipped", func(t *testing.T) {
		t.Parallel()
		store := newMemStore(models.StrategyNumericID)
		store.addEmployee("EMP-1", "Ada", "1001")
		batch := threeRecordBatch(t, store)
		store.insertErr = func(models.NaturalKey) error { return database.ErrDuplicateCheckin }

		res, err := NewSink(store, nil, "c", "default").Persist(context.Background(), batch)
		if err != nil || res != (models.SinkResult{Skipped: 3}) {
			t.Errorf("Persist() = %+v, %v", res, err)
		}
		if len(store.failed) != 0 {
			t.Errorf("duplicates must not be dead-lettered")
		}
	})

	t.Run("exists failure aborts", func(t *testing.T) {
		t.Parallel()
		store := newMemStore(models.StrategyNumericID)
		batch := threeRecordBatch(t, store)
		store.existsErr = errors.New("database is locked")

		_, err := NewSink(store, nil, "c", "default").Persist(context.Background(), batch)
		if !errors.Is(err, ErrPersistence) {
			t.Errorf("Persist() error = %v, want ErrPersistence", err)
		}
	})

	t.Run("dead-letter failure aborts", func(t *testing.T) {
		t.Parallel()
		store := newMemStore(models.StrategyNumericID)
		batch := threeRecordBatch(t, store)
		store.insertErr = func(models.NaturalKey) error { return errors.New("disk full") }
		store.dlqErr = errors.New("disk full")

		res, err := NewSink(store, nil, "c", "default").Persist(context.Background(), batch)
		if !errors.Is(err, ErrPersistence) {
			t.Errorf("Persist() error = %v, want ErrPersistence", err)
		}
		if res.Failed != 1 {
			t.Errorf("Failed = %d, want 1 before abort", res.Failed)
		}
	})

	t.Run("publish failure does not fail batch", func(t *testing.T) {
		t.Parallel()
		store := newMemStore(models.StrategyNumericID)
		batch := threeRecordBatch(t, store)
		pub := &recordingPublisher{err: errors.New("nats down")}

		res, err := NewSink(store, pub, "c", "default").Persist(context.Background(), batch)
		if err != nil || res.Inserted != 3 {
			t.Errorf("Persist() = %+v, %v", res, err)
		}
	})

	t.Run("canceled context stops", func(t *testing.T) {
		t.Parallel()
		store := newMemStore(models.StrategyNumericID)
		batch := threeRecordBatch(t, store)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res, err := NewSink(store, nil, "c", "default").Persist(ctx, batch)
		if !errors.Is(err, context.Canceled) || res.Inserted != 0 {
			t.Errorf("Persist() = %+v, %v", res, err)
		}
	})
}

func TestSink_RecordFailure(t *testing.T) {
	t.Parallel()

	store := newMemStore(models.StrategyNumericID)
	sink := NewSink(store, nil, "cycle-3", "default")
	raw := punch(44, "1001", "Check In", "Gate", testNow)
	raw.PunchTime = "not a time"

	if err := sink.RecordFailure(context.Background(), &raw, ErrUnparseableTime); err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}
	if len(store.failed) != 1 || store.failed[0].RemoteID != 44 || store.failed[0].NaturalKey != "" {
		t.Errorf("dead letters = %+v", store.failed)
	}
	if dlqReason(ErrUnparseableTime) != "unparseable_time" {
		t.Errorf("dlqReason = %q", dlqReason(ErrUnparseableTime))
	}
}
