// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package sync

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// EmployeeFinder is the directory lookup backing identity resolution.
type EmployeeFinder interface {
	FindEmployee(ctx context.Context, code string) (id, name string, found bool, err error)
}

type identityEntry struct {
	id    string
	name  string
	found bool
}

// CachedIdentity caches directory lookups, including misses, for a TTL.
// Purge after the directory changes.
type CachedIdentity struct {
	finder EmployeeFinder
	cache  *expirable.LRU[string, identityEntry]
}

// NewCachedIdentity wraps finder with an LRU of the given size and TTL.
func NewCachedIdentity(finder EmployeeFinder, size int, ttl time.Duration) *CachedIdentity {
	if size <= 0 {
		size = 4096
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedIdentity{
		finder: finder,
		cache:  expirable.NewLRU[string, identityEntry](size, nil, ttl),
	}
}

// FindInternalID implements IdentityResolver. Errors are never cached.
func (c *CachedIdentity) FindInternalID(ctx context.Context, code string) (id, name string, found bool, err error) {
	if e, ok := c.cache.Get(code); ok {
		return e.id, e.name, e.found, nil
	}
	id, name, found, err = c.finder.FindEmployee(ctx, code)
	if err != nil {
		return "", "", false, err
	}
	c.cache.Add(code, identityEntry{id: id, name: name, found: found})
	return id, name, found, nil
}

// Purge drops every cached entry.
func (c *CachedIdentity) Purge() {
	c.cache.Purge()
}

// Len returns the number of cached entries.
func (c *CachedIdentity) Len() int {
	return c.cache.Len()
}
