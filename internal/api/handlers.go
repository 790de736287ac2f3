// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/clocksync/internal/database"
	"github.com/tomtom215/clocksync/internal/logging"
	"github.com/tomtom215/clocksync/internal/models"
)

// Version is reported by the health endpoint. Set at build time.
var Version = "dev"

const (
	defaultPageLimit   = 100
	maxPageLimit       = 1000
	defaultReconcile   = 500
	maxReconcileBatch  = 10000
	defaultDLQLimit    = 100
	healthCheckTimeout = 2 * time.Second
)

// SyncService is the subset of *sync.Manager the API drives.
type SyncService interface {
	RunCycle(ctx context.Context, trigger models.Trigger) (*models.CycleOutcome, error)
	Status(ctx context.Context) (*models.SyncStatus, error)
	LastSuccess() time.Time
	DiscoverDevices(ctx context.Context) (*models.DiscoveryResult, error)
	ReconcileOrphans(ctx context.Context, batch int) (*models.ReconcileResult, error)
	RepairDeviceLabels(ctx context.Context, req models.RepairRequest) (*models.RepairResult, error)
	ImportEmployees(ctx context.Context, employees []models.Employee) (int, error)
}

// Store is the read side of the local database.
type Store interface {
	Ping(ctx context.Context) error
	GetRecordCounts(ctx context.Context) (database.RecordCounts, error)
	ListDevices(ctx context.Context) ([]models.Device, error)
	ListOrphans(ctx context.Context, limit, offset int) ([]models.StoredOrphan, error)
	ListEmployees(ctx context.Context) ([]models.Employee, error)
	ListFailedCheckins(ctx context.Context, limit int) ([]models.FailedCheckin, error)
}

// Handler serves the trigger API.
type Handler struct {
	sync      SyncService
	store     Store
	startTime time.Time
}

// NewHandler creates a handler.
func NewHandler(svc SyncService, store Store) *Handler {
	return &Handler{sync: svc, store: store, startTime: time.Now()}
}

// Health reports database connectivity and the last successful cycle.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	health := models.HealthStatus{
		Status:            "healthy",
		Version:           Version,
		DatabaseConnected: h.store.Ping(ctx) == nil,
		Uptime:            time.Since(h.startTime).Seconds(),
	}
	if !health.DatabaseConnected {
		health.Status = "degraded"
	} else if counts, err := h.store.GetRecordCounts(ctx); err == nil {
		health.Counts = map[string]int64{
			"employees": counts.Employees,
			"checkins":  counts.Checkins,
			"orphans":   counts.Orphans,
			"failed":    counts.Failed,
			"devices":   counts.Devices,
		}
	}
	if last := h.sync.LastSuccess(); !last.IsZero() {
		health.LastSyncTime = &last
	}

	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, &models.APIResponse{
		Status:   "success",
		Data:     health,
		Metadata: models.Metadata{Timestamp: time.Now()},
	})
}

// TriggerSync runs a manual cycle and returns its outcome.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	out, err := h.sync.RunCycle(r.Context(), models.Trigger{Kind: models.TriggerManual})
	if err != nil {
		respondOperationError(w, "sync", err, outcomeDetails(out))
		return
	}
	respondOK(w, out, start)
}

// TriggerBackfill runs a one-off cycle over an explicit window.
func (h *Handler) TriggerBackfill(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.BackfillRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondErrorDetails(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details, nil)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("device_alias", sanitizeLogValue(req.DeviceAlias)).
		Time("start", req.Start).
		Time("end", req.End).
		Bool("reset_checkpoint", req.ResetCheckpoint).
		Msg("Backfill requested")

	out, err := h.sync.RunCycle(r.Context(), models.Trigger{
		Kind:            models.TriggerBackfill,
		Start:           req.Start,
		End:             req.End,
		DeviceAlias:     req.DeviceAlias,
		ResetCheckpoint: req.ResetCheckpoint,
	})
	if err != nil {
		respondOperationError(w, "backfill", err, outcomeDetails(out))
		return
	}
	respondOK(w, out, start)
}

// SyncStatus returns the connector, checkpoint, and last outcome.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status, err := h.sync.Status(r.Context())
	if err != nil {
		respondOperationError(w, "status", err, nil)
		return
	}
	respondOK(w, status, start)
}

// Devices lists registered terminals.
func (h *Handler) Devices(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	devices, err := h.store.ListDevices(r.Context())
	if err != nil {
		respondOperationError(w, "list devices", err, nil)
		return
	}
	respondOK(w, devices, start)
}

// DiscoverDevices imports the terminal list from BioTime.
func (h *Handler) DiscoverDevices(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	res, err := h.sync.DiscoverDevices(r.Context())
	if err != nil {
		respondOperationError(w, "device discovery", err, nil)
		return
	}
	respondOK(w, res, start)
}

// RepairDeviceLabels re-labels stored check-ins in a window.
func (h *Handler) RepairDeviceLabels(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.RepairRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondErrorDetails(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details, nil)
		return
	}
	res, err := h.sync.RepairDeviceLabels(r.Context(), req)
	if err != nil {
		respondOperationError(w, "label repair", err, nil)
		return
	}
	respondOK(w, res, start)
}

// Orphans pages through unresolved check-ins.
func (h *Handler) Orphans(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	limit, err := getIntParam(r, "limit", defaultPageLimit, 1, maxPageLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	offset, err := getIntParam(r, "offset", 0, 0, 1<<30)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	orphans, err := h.store.ListOrphans(r.Context(), limit, offset)
	if err != nil {
		respondOperationError(w, "list orphans", err, nil)
		return
	}
	respondOK(w, orphans, start)
}

// ReconcileOrphans resolves orphans against the employee directory.
func (h *Handler) ReconcileOrphans(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	batch, err := getIntParam(r, "batch", defaultReconcile, 1, maxReconcileBatch)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	res, err := h.sync.ReconcileOrphans(r.Context(), batch)
	if err != nil {
		respondOperationError(w, "orphan reconciliation", err, nil)
		return
	}
	respondOK(w, res, start)
}

// Employees lists the employee directory.
func (h *Handler) Employees(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	employees, err := h.store.ListEmployees(r.Context())
	if err != nil {
		respondOperationError(w, "list employees", err, nil)
		return
	}
	respondOK(w, employees, start)
}

// ImportEmployees upserts directory entries.
func (h *Handler) ImportEmployees(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.EmployeeImportRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondErrorDetails(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details, nil)
		return
	}
	n, err := h.sync.ImportEmployees(r.Context(), req.Employees)
	if err != nil {
		respondOperationError(w, "employee import", err, nil)
		return
	}
	respondOK(w, map[string]int{"imported": n}, start)
}

// FailedCheckins lists records the sink rejected.
func (h *Handler) FailedCheckins(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	limit, err := getIntParam(r, "limit", defaultDLQLimit, 1, maxPageLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	failed, err := h.store.ListFailedCheckins(r.Context(), limit)
	if err != nil {
		respondOperationError(w, "list failed check-ins", err, nil)
		return
	}
	respondOK(w, failed, start)
}

// outcomeDetails exposes the partial progress of a failed cycle.
func outcomeDetails(out *models.CycleOutcome) map[string]interface{} {
	if out == nil {
		return nil
	}
	return map[string]interface{}{
		"cycle_id": out.CycleID,
		"state":    out.State,
		"fetched":  out.Fetched,
		"inserted": out.Inserted,
		"skipped":  out.Skipped,
		"attempts": out.Attempts,
	}
}
