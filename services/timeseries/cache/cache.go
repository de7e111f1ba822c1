// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides a short-lived result cache for store queries.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is the freshness window of a cached result.
const DefaultTTL = 30 * time.Second

// TTL caches computed values for a fixed freshness window.
//
// # Description
//
// A value older than the TTL is stale and is recomputed on the next access.
// There is no background cleanup and no invalidation: expired entries are
// purged whenever a new value is stored. Concurrent misses for one key run
// the computation once; every waiter gets its result. Errors are never
// cached.
//
// # Thread Safety
//
// Safe for concurrent use.
type TTL[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	flight  singleflight.Group
	ttl     time.Duration
	now     func() time.Time

	hits   int64
	misses int64
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Stats are cumulative lookup counts.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// New creates a cache. A non-positive ttl uses DefaultTTL.
func New[V any](ttl time.Duration) *TTL[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TTL[V]{entries: make(map[string]entry[V]), ttl: ttl, now: time.Now}
}

// Get returns a fresh cached value.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.expired(e) {
		atomic.AddInt64(&c.misses, 1)
		var zero V
		return zero, false
	}
	atomic.AddInt64(&c.hits, 1)
	return e.value, true
}

// GetOrCompute returns the cached value for key, computing and storing it
// when absent or stale. hit reports whether the value came from the cache.
func (c *TTL[V]) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (V, error)) (value V, hit bool, err error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	res, err, _ := c.flight.Do(key, func() (interface{}, error) {
		// Another flight may have stored it while this one waited.
		c.mu.RLock()
		e, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && !c.expired(e) {
			return e.value, nil
		}

		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.put(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	return res.(V), false, nil
}

// Stats returns lookup counts and the current number of entries, stale
// ones included.
func (c *TTL[V]) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return Stats{
		Hits:    atomic.LoadInt64(&c.hits),
		Misses:  atomic.LoadInt64(&c.misses),
		Entries: n,
	}
}

func (c *TTL[V]) put(key string, v V) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.Sub(e.storedAt) > c.ttl {
			delete(c.entries, k)
		}
	}
	c.entries[key] = entry[V]{value: v, storedAt: now}
}

func (c *TTL[V]) expired(e entry[V]) bool {
	return c.now().Sub(e.storedAt) > c.ttl
}

// Key derives a cache key from query parameters. Parts are joined with a
// separator that cannot appear in identifiers, then hashed.
func Key(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(h[:16])
}
