// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/clocksync/internal/config"
	"github.com/tomtom215/clocksync/internal/middleware"
)

// NewRouter wires the trigger API routes.
func NewRouter(h *Handler, cfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	// Set before routes so mounted subrouters inherit them.
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimit(cfg.RateLimitReqs, cfg.RateLimitWindow))
		r.Use(middleware.PrometheusMetrics)

		r.Get("/health", h.Health)

		r.Route("/sync", func(r chi.Router) {
			r.Post("/", h.TriggerSync)
			r.Post("/backfill", h.TriggerBackfill)
			r.Get("/status", h.SyncStatus)
		})

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", h.Devices)
			r.Post("/discover", h.DiscoverDevices)
			r.Post("/repair-labels", h.RepairDeviceLabels)
		})

		r.Route("/orphans", func(r chi.Router) {
			r.Get("/", h.Orphans)
			r.Post("/reconcile", h.ReconcileOrphans)
		})

		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.Employees)
			r.Post("/", h.ImportEmployees)
		})

		r.Get("/dlq", h.FailedCheckins)
	})

	return r
}

// rateLimit limits per client IP. A non-positive limit disables it.
func rateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 || window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", nil)
		}),
	)
}
