// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package biotime

import (
	"errors"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/clocksync/internal/logging"
	"github.com/tomtom215/clocksync/internal/metrics"
)

// breaker guards the remote service. It opens after 60% of at least 10
// requests in a one minute window failed transiently and probes again after
// Timeout.
type breaker struct {
	cb   *gobreaker.CircuitBreaker[*http.Response]
	name string
}

func newBreaker(name string, timeout time.Duration) *breaker {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= 0.6 {
				logging.Warn().
					Str("breaker", name).
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", ratio*100).
					Msg("Opening circuit breaker")
				return true
			}
			return false
		},
		// 401 and other 4xx are answers, not outages.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	return &breaker{cb: cb, name: name}
}

// execute runs fn under the breaker. An open breaker is reported as
// ErrRemoteUnavailable so the orchestrator retries later.
func (b *breaker) execute(endpoint string, fn func() (*http.Response, error)) (*http.Response, error) {
	resp, err := b.cb.Execute(fn)
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		return nil, &APIError{Kind: ErrRemoteUnavailable, Endpoint: endpoint, Body: "circuit breaker open", Err: err}
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		return nil, err
	}
}

func (b *breaker) open() bool {
	return b.cb.State() == gobreaker.StateOpen
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
