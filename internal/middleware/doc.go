// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

/*
Package middleware provides HTTP middleware for the trigger API.

Every middleware has the chi signature func(http.Handler) http.Handler and
can be passed to r.Use directly.

Key Components:

  - RequestID: X-Request-ID propagation plus a correlation ID in the
    request context, so zerolog lines carry both
  - AccessLog: one structured log line per request
  - PrometheusMetrics: request count and latency per chi route pattern

Middleware Stack:

	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog)
	r.Use(chimiddleware.Recoverer)
	r.Route("/api/v1", func(r chi.Router) {
	    r.Use(httprate.LimitByIP(30, time.Minute))
	    r.Use(middleware.PrometheusMetrics)
	    ...
	})

Route patterns rather than raw paths label the metrics, which keeps
cardinality bounded.
*/
package middleware
