// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package models

import (
	"fmt"
	"time"
)

// CursorStrategy selects how the fetcher walks the transactions endpoint.
type CursorStrategy string

const (
	// StrategyDateWindow pages through a [start, end] punch-time window,
	// one device at a time.
	StrategyDateWindow CursorStrategy = "date_window"

	// StrategyNumericID jumps to page last_id/page_size+1 and drops ids <= last_id.
	StrategyNumericID CursorStrategy = "numeric_id"

	// StrategyPageCursor resumes at a saved page and binary-searches past
	// already-seen ids, bounded by max_records_per_cycle.
	StrategyPageCursor CursorStrategy = "page_cursor"
)

// ParseCursorStrategy validates a strategy name.
func ParseCursorStrategy(s string) (CursorStrategy, error) {
	switch cs := CursorStrategy(s); cs {
	case StrategyDateWindow, StrategyNumericID, StrategyPageCursor:
		return cs, nil
	default:
		return "", fmt.Errorf("unknown cursor strategy %q", s)
	}
}

// ConnectorConfig is one credential/endpoint pair for the remote time-clock
// service. A cycle receives it by value; token changes travel back as a
// TokenState and are persisted by the orchestrator.
type ConnectorConfig struct {
	ID          string         `json:"id"`
	BaseURL     string         `json:"base_url"`
	Username    string         `json:"username"`
	Secret      string         `json:"-"`
	BearerToken string         `json:"-"`
	Enabled     bool           `json:"enabled"`
	Strategy    CursorStrategy `json:"strategy"`
	PageSize    int            `json:"page_size"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TokenState is the result of a credential check. Refreshed is true when
// Token differs from what the caller supplied and should be persisted.
type TokenState struct {
	Token     string
	Refreshed bool
}
