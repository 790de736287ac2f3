// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package services

import (
	"context"
	"time"

	"github.com/tomtom215/clocksync/internal/logging"
)

// ValueLogCollector is satisfied by *checkpoint.Store.
type ValueLogCollector interface {
	RunValueLogGC(discardRatio float64) error
}

// CheckpointGCService periodically reclaims value log space in the
// checkpoint store. Every commit rewrites a connector's key, so the log
// grows without it.
type CheckpointGCService struct {
	store        ValueLogCollector
	interval     time.Duration
	discardRatio float64
}

// NewCheckpointGCService creates the service. Non-positive arguments take
// 10 minutes and 0.5.
func NewCheckpointGCService(store ValueLogCollector, interval time.Duration, discardRatio float64) *CheckpointGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if discardRatio <= 0 || discardRatio >= 1 {
		discardRatio = 0.5
	}
	return &CheckpointGCService{store: store, interval: interval, discardRatio: discardRatio}
}

// Serve implements suture.Service. GC errors are logged, not returned; the
// store is still usable and the next tick tries again.
func (c *CheckpointGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.store.RunValueLogGC(c.discardRatio); err != nil {
				logging.Warn().Err(err).Msg("Checkpoint value log GC failed")
			}
		}
	}
}

func (c *CheckpointGCService) String() string {
	return "checkpoint-gc"
}
