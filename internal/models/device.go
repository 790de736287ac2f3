// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package models

import (
	"strings"
	"time"
)

// Device is a biometric terminal discovered from the remote service.
type Device struct {
	RemoteID        int64      `json:"remote_id"`
	Name            string     `json:"name"`
	SerialNumber    string     `json:"serial_number"`
	Alias           string     `json:"alias"`
	IPAddress       string     `json:"ip_address"`
	AreaLabel       string     `json:"area_label"`
	LastActivity    *time.Time `json:"last_activity,omitempty"`
	LastSyncRequest *time.Time `json:"last_sync_request,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Employee is an entry in the internal employee directory used for identity
// resolution.
type Employee struct {
	EmployeeID   string    `json:"employee_id" validate:"required,max=140"`
	EmployeeName string    `json:"employee_name" validate:"required,max=255"`
	DeviceCode   string    `json:"device_code" validate:"required,max=64,devicecode"`
	Active       bool      `json:"active"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NormalizeDeviceCode keeps only the ASCII digits of a device enrollment
// code and drops leading zeros, so "EMP-0042", "0042" and "42" compare
// equal. An all-zero code normalizes to "0"; a code without digits to "".
func NormalizeDeviceCode(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for i := 0; i < len(code); i++ {
		if c := code[i]; c >= '0' && c <= '9' {
			if c == '0' && b.Len() == 0 {
				continue
			}
			b.WriteByte(c)
		}
	}
	if b.Len() == 0 && strings.ContainsAny(code, "0") {
		return "0"
	}
	return b.String()
}
