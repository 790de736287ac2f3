// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

// mockService runs until canceled, optionally failing its first starts.
type mockService struct {
	name     string
	starts   atomic.Int32
	maxFails int32
}

func (m *mockService) Serve(ctx context.Context) error {
	if n := m.starts.Add(1); n <= m.maxFails {
		return errors.New("simulated failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockService) String() string { return m.name }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewSupervisorTree_Defaults(t *testing.T) {
	t.Parallel()

	tree, err := NewSupervisorTree(quietLogger(), TreeConfig{})
	if err != nil {
		t.Fatalf("NewSupervisorTree() error = %v", err)
	}
	if tree.Root() == nil {
		t.Fatal("root supervisor is nil")
	}
	if tree.config != DefaultTreeConfig() {
		t.Errorf("config = %+v, want defaults", tree.config)
	}

	custom, _ := NewSupervisorTree(quietLogger(), TreeConfig{FailureBackoff: time.Second})
	if custom.config.FailureBackoff != time.Second || custom.config.FailureThreshold != 5 {
		t.Errorf("config = %+v", custom.config)
	}
}

func TestSupervisorTree_StartsEveryLayer(t *testing.T) {
	t.Parallel()

	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	storage := &mockService{name: "storage"}
	syncSvc := &mockService{name: "sync"}
	api := &mockService{name: "api"}
	tree.AddStorageService(storage)
	tree.AddSyncService(syncSvc)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if storage.starts.Load() > 0 && syncSvc.starts.Load() > 0 && api.starts.Load() > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not shut down")
	}
	for _, svc := range []*mockService{storage, syncSvc, api} {
		if svc.starts.Load() == 0 {
			t.Errorf("%s was not started", svc.name)
		}
	}
}

func TestSupervisorTree_RestartsFailingSyncService(t *testing.T) {
	t.Parallel()

	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})
	failing := &mockService{name: "failing", maxFails: 2}
	api := &mockService{name: "api"}
	tree.AddSyncService(failing)
	tree.AddAPIService(api)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_ = tree.Serve(ctx)

	if failing.starts.Load() < 3 {
		t.Errorf("failing service starts = %d, want at least 3", failing.starts.Load())
	}
	if api.starts.Load() != 1 {
		t.Errorf("api service starts = %d, want 1", api.starts.Load())
	}
}

func TestSupervisorTree_RemoveSyncService(t *testing.T) {
	t.Parallel()

	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	svc := &mockService{name: "tap"}
	token := tree.AddSyncService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	time.Sleep(50 * time.Millisecond)
	if err := tree.RemoveSyncService(token); err != nil {
		t.Errorf("RemoveSyncService() error = %v", err)
	}
	cancel()
	<-errCh
	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) != 0 {
		t.Errorf("unstopped services: %v", report)
	}
}
