// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSyncCycle(t *testing.T) {
	beforeOK := testutil.ToFloat64(SyncCyclesTotal.WithLabelValues("manual", "success"))
	beforeFail := testutil.ToFloat64(SyncCyclesTotal.WithLabelValues("manual", "failed"))
	beforeAuth := testutil.ToFloat64(SyncErrors.WithLabelValues("authentication"))

	RecordSyncCycle("manual", "numeric_id", 2*time.Second, true, "")
	RecordSyncCycle("manual", "numeric_id", time.Second, false, "authentication")

	if got := testutil.ToFloat64(SyncCyclesTotal.WithLabelValues("manual", "success")) - beforeOK; got != 1 {
		t.Errorf("success delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(SyncCyclesTotal.WithLabelValues("manual", "failed")) - beforeFail; got != 1 {
		t.Errorf("failed delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(SyncErrors.WithLabelValues("authentication")) - beforeAuth; got != 1 {
		t.Errorf("error delta = %v, want 1", got)
	}
	if testutil.ToFloat64(SyncLastSuccess) == 0 {
		t.Error("SyncLastSuccess should be set after a successful cycle")
	}
}

func TestRecordRemoteRequest_StatusLabels(t *testing.T) {
	before200 := testutil.ToFloat64(RemoteRequestsTotal.WithLabelValues("transactions", "200"))
	beforeNet := testutil.ToFloat64(RemoteRequestsTotal.WithLabelValues("transactions", "network_error"))

	RecordRemoteRequest("transactions", 200, 10*time.Millisecond)
	RecordRemoteRequest("transactions", 0, time.Second)

	if got := testutil.ToFloat64(RemoteRequestsTotal.WithLabelValues("transactions", "200")) - before200; got != 1 {
		t.Errorf("200 delta = %v", got)
	}
	if got := testutil.ToFloat64(RemoteRequestsTotal.WithLabelValues("transactions", "network_error")) - beforeNet; got != 1 {
		t.Errorf("network_error delta = %v", got)
	}
}

func TestRecordCheckpoint(t *testing.T) {
	end := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	RecordCheckpoint("test-conn", 52, 3, end)

	if got := testutil.ToFloat64(CheckpointCursor.WithLabelValues("test-conn", "last_seen_id")); got != 52 {
		t.Errorf("last_seen_id = %v, want 52", got)
	}
	if got := testutil.ToFloat64(CheckpointCursor.WithLabelValues("test-conn", "last_window_end")); got != float64(end.Unix()) {
		t.Errorf("last_window_end = %v", got)
	}
}

func TestRecordHelpers_NoPanic(t *testing.T) {
	RecordPipeline(3, 2, 1)
	RecordSinkResult(true, "inserted")
	RecordSinkResult(false, "skipped")
	RecordTokenRefresh(true)
	RecordTokenRefresh(false)
	RecordDBQuery("insert", "employee_checkins", time.Millisecond, errors.New("constraint"))
	RecordEventPublish(nil)
	RecordEventPublish(errors.New("down"))
	RecordAPIRequest("POST", "/api/v1/sync", 202, time.Millisecond)
}
