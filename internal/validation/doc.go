// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

// Package validation validates trigger API request bodies with
// go-playground/validator v10.
//
// # Overview
//
//   - One process-wide validator (struct info is cached after first use)
//   - Field names in messages use the JSON tag, so clients see
//     "device_alias", not "DeviceAlias"
//   - A devicecode tag for the codes typed on a time clock keypad
//   - Conversion to the VALIDATION_ERROR shape of models.APIError
//
// # Usage
//
//	var req models.BackfillRequest
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
//	    return
//	}
package validation
