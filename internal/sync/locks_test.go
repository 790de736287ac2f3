// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package sync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLockRegistry_MutualExclusion(t *testing.T) {
	t.Parallel()

	r := NewLockRegistry()
	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := r.Acquire(context.Background(), "default")
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
			release()
		}()
	}
	wg.Wait()
	if peak.Load() != 1 {
		t.Errorf("peak concurrent holders = %d, want 1", peak.Load())
	}
}

func TestLockRegistry_AcquireHonorsContext(t *testing.T) {
	t.Parallel()

	r := NewLockRegistry()
	release, err := r.Acquire(context.Background(), "default")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := r.Acquire(ctx, "default"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() error = %v, want deadline exceeded", err)
	}

	// A different name is independent.
	other, err := r.Acquire(context.Background(), "other")
	if err != nil {
		t.Fatalf("Acquire(other) error = %v", err)
	}
	other()
}

func TestLockRegistry_TryAcquireAndHeld(t *testing.T) {
	t.Parallel()

	r := NewLockRegistry()
	if r.Held("default") {
		t.Fatal("lock should start free")
	}
	release, ok := r.TryAcquire("default")
	if !ok {
		t.Fatal("TryAcquire() on free lock failed")
	}
	if !r.Held("default") {
		t.Error("Held() = false while held")
	}
	if _, ok := r.TryAcquire("default"); ok {
		t.Error("TryAcquire() succeeded on held lock")
	}

	release()
	release() // second call is a no-op
	if r.Held("default") {
		t.Error("Held() = true after release")
	}
}
