// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package services

import (
	"context"
	"fmt"
)

// StartStopManager is satisfied by *sync.Manager.
type StartStopManager interface {
	Start(ctx context.Context) error
	Stop() error
}

// SyncService adapts the sync manager's Start/Stop lifecycle to suture.
// Stop cancels a running cycle and waits for the scheduler to exit, so a
// restart never overlaps two schedulers.
type SyncService struct {
	manager StartStopManager
}

// NewSyncService wraps manager.
func NewSyncService(manager StartStopManager) *SyncService {
	return &SyncService{manager: manager}
}

// Serve implements suture.Service.
func (s *SyncService) Serve(ctx context.Context) error {
	if err := s.manager.Start(ctx); err != nil {
		return fmt.Errorf("sync manager start failed: %w", err)
	}

	<-ctx.Done()

	if err := s.manager.Stop(); err != nil {
		return fmt.Errorf("sync manager stop failed: %w", err)
	}
	return ctx.Err()
}

func (s *SyncService) String() string {
	return "sync-manager"
}
