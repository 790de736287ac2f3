// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package biotime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Error kinds. Every *APIError unwraps to exactly one of these.
var (
	// ErrAuthentication means the credentials were rejected. Not retryable.
	ErrAuthentication = errors.New("biotime authentication failed")

	// ErrRemoteUnavailable covers network errors, timeouts, 5xx and 429. Retryable.
	ErrRemoteUnavailable = errors.New("biotime unavailable")

	// ErrMalformedResponse means a 200 body could not be decoded.
	ErrMalformedResponse = errors.New("biotime returned a malformed response")

	// ErrFatal covers 4xx responses other than 401, usually bad configuration.
	ErrFatal = errors.New("biotime rejected the request")
)

// APIError describes a failed exchange with the time-clock service.
type APIError struct {
	Kind       error
	Endpoint   string
	StatusCode int
	Body       string
	RetryAfter time.Duration
	Err        error
}

func (e *APIError) Error() string {
	msg := e.Kind.Error() + ": " + e.Endpoint
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRemoteUnavailable)
}

// IsAuthentication reports whether err is a credential failure.
func IsAuthentication(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// statusError classifies a non-200 response. 401 is returned as
// ErrAuthentication; the caller decides whether to refresh first.
func statusError(endpoint string, status int, body []byte) *APIError {
	e := &APIError{Endpoint: endpoint, StatusCode: status, Body: string(body)}
	switch {
	case status == http.StatusUnauthorized:
		e.Kind = ErrAuthentication
	case status == http.StatusTooManyRequests, status >= 500:
		e.Kind = ErrRemoteUnavailable
	default:
		e.Kind = ErrFatal
	}
	return e
}

// transportError classifies an error from http.Client.Do. Context
// cancellation by the caller is passed through unchanged.
func transportError(ctx context.Context, endpoint string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &APIError{Kind: ErrRemoteUnavailable, Endpoint: endpoint, Body: "timeout", Err: err}
	}
	return &APIError{Kind: ErrRemoteUnavailable, Endpoint: endpoint, Err: err}
}

func malformedError(endpoint string, err error) *APIError {
	return &APIError{Kind: ErrMalformedResponse, Endpoint: endpoint, Err: err}
}
