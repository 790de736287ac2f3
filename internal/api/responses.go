// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/clocksync/internal/biotime"
	"github.com/tomtom215/clocksync/internal/logging"
	"github.com/tomtom215/clocksync/internal/models"
	syncmgr "github.com/tomtom215/clocksync/internal/sync"
	"github.com/tomtom215/clocksync/internal/validation"
)

// maxBodyBytes caps request bodies. An employee import of 10000 entries
// fits comfortably.
const maxBodyBytes = 4 << 20

// sanitizeLogValue escapes control characters before a client-supplied
// value reaches a log line.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondOK(w http.ResponseWriter, data interface{}, started time.Time) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   data,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(started).Milliseconds(),
		},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	respondErrorDetails(w, status, code, message, nil, err)
}

func respondErrorDetails(w http.ResponseWriter, status int, code, message string, details map[string]interface{}, err error) {
	if err != nil {
		logging.Error().Str("code", sanitizeLogValue(code)).Str("error", sanitizeLogValue(err.Error())).Msg("API Error")
	}
	respondJSON(w, status, &models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now()},
		Error: &models.APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// validateRequest returns a VALIDATION_ERROR when v fails its struct tags.
func validateRequest(v interface{}) *models.APIError {
	verr := validation.ValidateStruct(v)
	if verr == nil {
		return nil
	}
	apiErr := verr.ToAPIError()
	return &models.APIError{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
	}
}

// decodeJSON reads a size-limited JSON body into v. An empty body leaves v
// unchanged when allowEmpty is set.
func decodeJSON(r *http.Request, v interface{}, allowEmpty bool) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return errors.New("request body too large")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		if allowEmpty {
			return nil
		}
		return errors.New("request body required")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// getIntParam reads a bounded integer query parameter. Missing values give
// def; malformed or out-of-range values are an error.
func getIntParam(r *http.Request, key string, def, minVal, maxVal int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	if n < minVal || n > maxVal {
		return 0, fmt.Errorf("%s must be between %d and %d", key, minVal, maxVal)
	}
	return n, nil
}

// classifyError maps an operation error to a status and error code.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	case errors.Is(err, syncmgr.ErrConfiguration):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, biotime.ErrAuthentication),
		errors.Is(err, biotime.ErrRemoteUnavailable),
		errors.Is(err, biotime.ErrMalformedResponse),
		errors.Is(err, biotime.ErrFatal):
		return http.StatusBadGateway, "UPSTREAM_ERROR"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// respondOperationError reports a failed operation. Upstream and conflict
// errors expose their message; internal errors do not.
func respondOperationError(w http.ResponseWriter, op string, err error, details map[string]interface{}) {
	status, code := classifyError(err)
	message := op + " failed"
	if status != http.StatusInternalServerError {
		message = fmt.Sprintf("%s failed: %v", op, err)
	}
	respondErrorDetails(w, status, code, message, details, err)
}
