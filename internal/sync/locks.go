// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package sync

import (
	"context"
	"sync"
)

// LockRegistry hands out one named lock per connector id.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewLockRegistry creates an empty registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[string]chan struct{})}
}

func (r *LockRegistry) slot(name string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.locks[name]
	if !ok {
		ch = make(chan struct{}, 1)
		r.locks[name] = ch
	}
	return ch
}

// Acquire blocks until the named lock is free or ctx is done. The returned
// release func must be called exactly once.
func (r *LockRegistry) Acquire(ctx context.Context, name string) (release func(), err error) {
	ch := r.slot(name)
	select {
	case ch <- struct{}{}:
		return releaseOnce(ch), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire takes the named lock only if it is free.
func (r *LockRegistry) TryAcquire(name string) (release func(), ok bool) {
	ch := r.slot(name)
	select {
	case ch <- struct{}{}:
		return releaseOnce(ch), true
	default:
		return nil, false
	}
}

// Held reports whether the named lock is currently taken.
func (r *LockRegistry) Held(name string) bool {
	return len(r.slot(name)) > 0
}

func releaseOnce(ch chan struct{}) func() {
	var once sync.Once
	return func() { once.Do(func() { <-ch }) }
}
