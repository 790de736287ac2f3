// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package models

import "time"

// SyncCheckpoint is the durable cursor for one connector. Which fields are
// meaningful depends on Strategy:
//
//   - date_window: DeviceWindows (per terminal alias) and LastWindowEnd
//   - numeric_id:  LastSeenID
//   - page_cursor: LastPage and LastSeenID
type SyncCheckpoint struct {
	ConnectorID   string               `json:"connector_id"`
	Strategy      CursorStrategy       `json:"strategy"`
	LastSeenID    int64                `json:"last_seen_id"`
	LastPage      int                  `json:"last_page"`
	LastWindowEnd time.Time            `json:"last_window_end"`
	DeviceWindows map[string]time.Time `json:"device_windows,omitempty"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// Clone returns a deep copy so a cycle can stage changes without touching
// the loaded value.
func (c SyncCheckpoint) Clone() SyncCheckpoint {
	out := c
	if c.DeviceWindows != nil {
		out.DeviceWindows = make(map[string]time.Time, len(c.DeviceWindows))
		for k, v := range c.DeviceWindows {
			out.DeviceWindows[k] = v
		}
	}
	return out
}

// DeviceWindow returns the committed window end for a device alias.
func (c SyncCheckpoint) DeviceWindow(alias string) (time.Time, bool) {
	t, ok := c.DeviceWindows[alias]
	return t, ok && !t.IsZero()
}

// WithDeviceWindow returns a copy with alias advanced to end. LastWindowEnd
// tracks the latest end across devices.
func (c SyncCheckpoint) WithDeviceWindow(alias string, end time.Time) SyncCheckpoint {
	out := c.Clone()
	if out.DeviceWindows == nil {
		out.DeviceWindows = make(map[string]time.Time)
	}
	out.DeviceWindows[alias] = end
	if end.After(out.LastWindowEnd) {
		out.LastWindowEnd = end
	}
	return out
}
