// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/clocksync/internal/biotime"
	"github.com/tomtom215/clocksync/internal/config"
	"github.com/tomtom215/clocksync/internal/database"
	"github.com/tomtom215/clocksync/internal/models"
	syncmgr "github.com/tomtom215/clocksync/internal/sync"
)

type mockSync struct {
	runCycle    func(ctx context.Context, trigger models.Trigger) (*models.CycleOutcome, error)
	status      func(ctx context.Context) (*models.SyncStatus, error)
	lastSuccess time.Time
	discover    func(ctx context.Context) (*models.DiscoveryResult, error)
	reconcile   func(ctx context.Context, batch int) (*models.ReconcileResult, error)
	repair      func(ctx context.Context, req models.RepairRequest) (*models.RepairResult, error)
	importEmps  func(ctx context.Context, employees []models.Employee) (int, error)
}

func (m *mockSync) RunCycle(ctx context.Context, trigger models.Trigger) (*models.CycleOutcome, error) {
	return m.runCycle(ctx, trigger)
}

func (m *mockSync) Status(ctx context.Context) (*models.SyncStatus, error) { return m.status(ctx) }

func (m *mockSync) LastSuccess() time.Time { return m.lastSuccess }

func (m *mockSync) DiscoverDevices(ctx context.Context) (*models.DiscoveryResult, error) {
	return m.discover(ctx)
}

func (m *mockSync) ReconcileOrphans(ctx context.Context, batch int) (*models.ReconcileResult, error) {
	return m.reconcile(ctx, batch)
}

func (m *mockSync) RepairDeviceLabels(ctx context.Context, req models.RepairRequest) (*models.RepairResult, error) {
	return m.repair(ctx, req)
}

func (m *mockSync) ImportEmployees(ctx context.Context, employees []models.Employee) (int, error) {
	return m.importEmps(ctx, employees)
}

type mockStore struct {
	pingErr   error
	counts    database.RecordCounts
	devices   []models.Device
	orphans   func(limit, offset int) ([]models.StoredOrphan, error)
	employees []models.Employee
	failed    func(limit int) ([]models.FailedCheckin, error)
}

func (m *mockStore) Ping(context.Context) error { return m.pingErr }

func (m *mockStore) GetRecordCounts(context.Context) (database.RecordCounts, error) {
	return m.counts, nil
}

func (m *mockStore) ListDevices(context.Context) ([]models.Device, error) { return m.devices, nil }

func (m *mockStore) ListOrphans(_ context.Context, limit, offset int) ([]models.StoredOrphan, error) {
	return m.orphans(limit, offset)
}

func (m *mockStore) ListEmployees(context.Context) ([]models.Employee, error) {
	return m.employees, nil
}

func (m *mockStore) ListFailedCheckins(_ context.Context, limit int) ([]models.FailedCheckin, error) {
	return m.failed(limit)
}

func newTestRouter(svc *mockSync, store *mockStore) http.Handler {
	return NewRouter(NewHandler(svc, store), config.ServerConfig{})
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, models.APIResponse) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func TestHealth(t *testing.T) {
	t.Parallel()

	last := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		store      *mockStore
		wantStatus int
		wantHealth string
	}{
		{"healthy", &mockStore{counts: database.RecordCounts{Checkins: 12}}, http.StatusOK, "healthy"},
		{"database down", &mockStore{pingErr: errors.New("closed")}, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			router := newTestRouter(&mockSync{lastSuccess: last}, tt.store)
			rec, resp := doRequest(t, router, http.MethodGet, "/api/v1/health", "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			data := resp.Data.(map[string]interface{})
			if data["status"] != tt.wantHealth {
				t.Errorf("health status = %v, want %s", data["status"], tt.wantHealth)
			}
			if data["last_sync_time"] == nil {
				t.Error("last_sync_time missing")
			}
		})
	}
}

func TestTriggerSync(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"success", nil, http.StatusOK, ""},
		{"no connector", fmt.Errorf("%w: no enabled connector", syncmgr.ErrConfiguration), http.StatusConflict, "CONFLICT"},
		{"auth failure", fmt.Errorf("login: %w", biotime.ErrAuthentication), http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"store failure", fmt.Errorf("%w: disk full", syncmgr.ErrPersistence), http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"canceled", context.Canceled, http.StatusServiceUnavailable, "UNAVAILABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got models.Trigger
			svc := &mockSync{runCycle: func(_ context.Context, trigger models.Trigger) (*models.CycleOutcome, error) {
				got = trigger
				return &models.CycleOutcome{CycleID: "c-1", Inserted: 3}, tt.err
			}}
			rec, resp := doRequest(t, newTestRouter(svc, &mockStore{}), http.MethodPost, "/api/v1/sync", "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if got.Kind != models.TriggerManual {
				t.Errorf("trigger kind = %q, want manual", got.Kind)
			}
			if tt.wantCode == "" {
				return
			}
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Fatalf("error = %+v, want code %s", resp.Error, tt.wantCode)
			}
			if resp.Error.Details["cycle_id"] != "c-1" {
				t.Errorf("details = %v, want cycle_id", resp.Error.Details)
			}
			if tt.wantStatus == http.StatusInternalServerError && strings.Contains(resp.Error.Message, "disk") {
				t.Errorf("internal error leaked: %q", resp.Error.Message)
			}
		})
	}
}

func TestTriggerBackfill(t *testing.T) {
	t.Parallel()

	var got models.Trigger
	svc := &mockSync{runCycle: func(_ context.Context, trigger models.Trigger) (*models.CycleOutcome, error) {
		got = trigger
		return &models.CycleOutcome{CycleID: "b-1"}, nil
	}}
	router := newTestRouter(svc, &mockStore{})

	body := `{"start":"2026-03-01T00:00:00Z","end":"2026-03-02T00:00:00Z","device_alias":"Gate","reset_checkpoint":true}`
	rec, _ := doRequest(t, router, http.MethodPost, "/api/v1/sync/backfill", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got.Kind != models.TriggerBackfill || got.DeviceAlias != "Gate" || !got.ResetCheckpoint {
		t.Errorf("trigger = %+v", got)
	}
	if !got.End.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("End = %v", got.End)
	}

	invalid := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"malformed", "{"},
		{"inverted window", `{"start":"2026-03-02T00:00:00Z","end":"2026-03-01T00:00:00Z","device_alias":"Gate"}`},
		{"missing alias", `{"start":"2026-03-01T00:00:00Z","end":"2026-03-02T00:00:00Z"}`},
	}
	for _, tt := range invalid {
		rec, resp := doRequest(t, router, http.MethodPost, "/api/v1/sync/backfill", tt.body)
		if rec.Code != http.StatusBadRequest || resp.Error == nil || resp.Error.Code != "VALIDATION_ERROR" {
			t.Errorf("%s: status = %d, error = %+v", tt.name, rec.Code, resp.Error)
		}
	}
}

func TestSyncStatus(t *testing.T) {
	t.Parallel()

	svc := &mockSync{status: func(context.Context) (*models.SyncStatus, error) {
		return &models.SyncStatus{ConnectorID: "default", Strategy: models.StrategyNumericID}, nil
	}}
	rec, resp := doRequest(t, newTestRouter(svc, &mockStore{}), http.MethodGet, "/api/v1/sync/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp.Data.(map[string]interface{})["connector_id"] != "default" {
		t.Errorf("data = %v", resp.Data)
	}
}

func TestDevicesAndDiscovery(t *testing.T) {
	t.Parallel()

	svc := &mockSync{discover: func(context.Context) (*models.DiscoveryResult, error) {
		return &models.DiscoveryResult{Discovered: 2, Created: 1, Updated: 1}, nil
	}}
	store := &mockStore{devices: []models.Device{{Alias: "Gate"}, {Alias: "Dock"}}}
	router := newTestRouter(svc, store)

	rec, resp := doRequest(t, router, http.MethodGet, "/api/v1/devices", "")
	if rec.Code != http.StatusOK || len(resp.Data.([]interface{})) != 2 {
		t.Errorf("devices: status = %d, data = %v", rec.Code, resp.Data)
	}

	rec, resp = doRequest(t, router, http.MethodPost, "/api/v1/devices/discover", "")
	if rec.Code != http.StatusOK || resp.Data.(map[string]interface{})["created"] != float64(1) {
		t.Errorf("discover: status = %d, data = %v", rec.Code, resp.Data)
	}

	svc.discover = func(context.Context) (*models.DiscoveryResult, error) {
		return nil, fmt.Errorf("list terminals: %w", biotime.ErrRemoteUnavailable)
	}
	rec, _ = doRequest(t, router, http.MethodPost, "/api/v1/devices/discover", "")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("discover failure status = %d, want 502", rec.Code)
	}
}

func TestOrphans_Paging(t *testing.T) {
	t.Parallel()

	var gotLimit, gotOffset int
	store := &mockStore{orphans: func(limit, offset int) ([]models.StoredOrphan, error) {
		gotLimit, gotOffset = limit, offset
		return []models.StoredOrphan{{ID: 1}}, nil
	}}
	router := newTestRouter(&mockSync{}, store)

	tests := []struct {
		query      string
		wantStatus int
		wantLimit  int
		wantOffset int
	}{
		{"", http.StatusOK, defaultPageLimit, 0},
		{"?limit=5&offset=10", http.StatusOK, 5, 10},
		{"?limit=0", http.StatusBadRequest, 0, 0},
		{"?limit=abc", http.StatusBadRequest, 0, 0},
		{"?offset=-1", http.StatusBadRequest, 0, 0},
	}
	for _, tt := range tests {
		gotLimit, gotOffset = 0, 0
		rec, _ := doRequest(t, router, http.MethodGet, "/api/v1/orphans"+tt.query, "")
		if rec.Code != tt.wantStatus {
			t.Errorf("%q: status = %d, want %d", tt.query, rec.Code, tt.wantStatus)
			continue
		}
		if gotLimit != tt.wantLimit || gotOffset != tt.wantOffset {
			t.Errorf("%q: limit/offset = %d/%d, want %d/%d", tt.query, gotLimit, gotOffset, tt.wantLimit, tt.wantOffset)
		}
	}
}

func TestReconcileOrphans(t *testing.T) {
	t.Parallel()

	var gotBatch int
	svc := &mockSync{reconcile: func(_ context.Context, batch int) (*models.ReconcileResult, error) {
		gotBatch = batch
		return &models.ReconcileResult{Examined: 3, Resolved: 2, Skipped: 1}, nil
	}}
	router := newTestRouter(svc, &mockStore{})

	rec, resp := doRequest(t, router, http.MethodPost, "/api/v1/orphans/reconcile?batch=50", "")
	if rec.Code != http.StatusOK || gotBatch != 50 {
		t.Fatalf("status = %d, batch = %d", rec.Code, gotBatch)
	}
	if resp.Data.(map[string]interface{})["resolved"] != float64(2) {
		t.Errorf("data = %v", resp.Data)
	}

	rec, _ = doRequest(t, router, http.MethodPost, "/api/v1/orphans/reconcile?batch=0", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("batch=0 status = %d, want 400", rec.Code)
	}
}

func TestRepairDeviceLabels(t *testing.T) {
	t.Parallel()

	var got models.RepairRequest
	svc := &mockSync{repair: func(_ context.Context, req models.RepairRequest) (*models.RepairResult, error) {
		got = req
		return &models.RepairResult{Examined: 2, Relabeled: 2}, nil
	}}
	router := newTestRouter(svc, &mockStore{})

	body := `{"start":"2026-03-01T00:00:00Z","end":"2026-03-02T00:00:00Z"}`
	rec, _ := doRequest(t, router, http.MethodPost, "/api/v1/devices/repair-labels", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got.DeviceAlias != "" || got.Start.IsZero() {
		t.Errorf("request = %+v", got)
	}

	bad := `{"start":"2026-03-02T00:00:00Z","end":"2026-03-01T00:00:00Z"}`
	if rec, _ := doRequest(t, router, http.MethodPost, "/api/v1/devices/repair-labels", bad); rec.Code != http.StatusBadRequest {
		t.Errorf("inverted window status = %d, want 400", rec.Code)
	}
}

func TestEmployees(t *testing.T) {
	t.Parallel()

	var imported []models.Employee
	svc := &mockSync{importEmps: func(_ context.Context, employees []models.Employee) (int, error) {
		imported = employees
		return len(employees), nil
	}}
	store := &mockStore{employees: []models.Employee{{EmployeeID: "E1", EmployeeName: "Ada", DeviceCode: "1001"}}}
	router := newTestRouter(svc, store)

	rec, resp := doRequest(t, router, http.MethodGet, "/api/v1/employees", "")
	if rec.Code != http.StatusOK || len(resp.Data.([]interface{})) != 1 {
		t.Errorf("list: status = %d, data = %v", rec.Code, resp.Data)
	}

	body := `{"employees":[{"employee_id":"E2","employee_name":"Grace","device_code":"1002"}]}`
	rec, resp = doRequest(t, router, http.MethodPost, "/api/v1/employees", body)
	if rec.Code != http.StatusOK || len(imported) != 1 || imported[0].DeviceCode != "1002" {
		t.Fatalf("import: status = %d, imported = %+v", rec.Code, imported)
	}
	if resp.Data.(map[string]interface{})["imported"] != float64(1) {
		t.Errorf("data = %v", resp.Data)
	}

	bad := `{"employees":[{"employee_id":"E3","employee_name":"Linus","device_code":"10 03"}]}`
	rec, resp = doRequest(t, router, http.MethodPost, "/api/v1/employees", bad)
	if rec.Code != http.StatusBadRequest || resp.Error.Details["field"] != "employees[0].device_code" {
		t.Errorf("invalid import: status = %d, error = %+v", rec.Code, resp.Error)
	}
}

func TestFailedCheckins(t *testing.T) {
	t.Parallel()

	var gotLimit int
	store := &mockStore{failed: func(limit int) ([]models.FailedCheckin, error) {
		gotLimit = limit
		return nil, errors.New("table missing")
	}}
	rec, resp := doRequest(t, newTestRouter(&mockSync{}, store), http.MethodGet, "/api/v1/dlq?limit=7", "")
	if rec.Code != http.StatusInternalServerError || gotLimit != 7 {
		t.Errorf("status = %d, limit = %d", rec.Code, gotLimit)
	}
	if resp.Error == nil || resp.Error.Code != "INTERNAL_ERROR" {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestRouter_NotFoundAndMethod(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&mockSync{}, &mockStore{})
	if rec, resp := doRequest(t, router, http.MethodGet, "/api/v1/nope", ""); rec.Code != http.StatusNotFound || resp.Error.Code != "NOT_FOUND" {
		t.Errorf("not found: status = %d", rec.Code)
	}
	if rec, resp := doRequest(t, router, http.MethodGet, "/api/v1/sync", ""); rec.Code != http.StatusMethodNotAllowed || resp.Error.Code != "METHOD_NOT_ALLOWED" {
		t.Errorf("method: status = %d", rec.Code)
	}
}

func TestRouter_RateLimit(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	router := NewRouter(NewHandler(&mockSync{}, store), config.ServerConfig{RateLimitReqs: 2, RateLimitWindow: time.Minute})

	var last int
	for i := 0; i < 3; i++ {
		rec, _ := doRequest(t, router, http.MethodGet, "/api/v1/devices", "")
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", last)
	}
}
