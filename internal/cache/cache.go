// SPDX-License-Identifier: MIT

// Package cache provides the content-addressed cache layer that deduplicates
// expensive external calls, with in-memory and Redis backends.
package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Backend is a byte-oriented cache store with TTL support.
type Backend interface {
	// Get retrieves a value. Returns false if not found or expired.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores a value with the specified TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	// Delete removes a value.
	Delete(ctx context.Context, key string)
	// DeletePrefix removes all values whose key starts with prefix and
	// returns the number removed.
	DeletePrefix(ctx context.Context, prefix string) int
	// EvictLRU removes up to n least-recently-used entries and returns
	// the number removed.
	EvictLRU(ctx context.Context, n int) int
	// Stats returns cache statistics.
	Stats() Stats
}

// Stats holds cache performance counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	CurrentSize int
}

// entry is a cached value with expiry and access bookkeeping.
type entry struct {
	value      []byte
	expiration time.Time
	lastAccess time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiration)
}

// memoryBackend is the in-process Backend implementation.
type memoryBackend struct {
	mu      sync.Mutex
	entries map[string]*entry
	stats   Stats
	janitor *janitor
	now     func() time.Time
}

// NewMemoryBackend creates an in-memory cache with automatic cleanup of
// expired entries every cleanupInterval (0 disables the janitor).
func NewMemoryBackend(cleanupInterval time.Duration) Backend {
	c := &memoryBackend{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	if cleanupInterval > 0 {
		c.janitor = &janitor{
			interval: cleanupInterval,
			stop:     make(chan struct{}),
		}
		go c.janitor.run(c)
	}
	return c
}

func (c *memoryBackend) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found || e.expired(c.now()) {
		c.stats.Misses++
		return nil, false
	}

	e.lastAccess = c.now()
	c.stats.Hits++
	return e.value, true
}

func (c *memoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = &entry{
		value:      value,
		expiration: now.Add(ttl),
		lastAccess: now,
	}
	c.stats.Sets++
}

func (c *memoryBackend) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *memoryBackend) DeletePrefix(_ context.Context, prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
			count++
		}
	}
	return count
}

func (c *memoryBackend) EvictLRU(_ context.Context, n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n <= 0 || len(c.entries) == 0 {
		return 0
	}

	type aged struct {
		key  string
		last time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for key, e := range c.entries {
		all = append(all, aged{key: key, last: e.lastAccess})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].last.Before(all[j].last) })

	if n > len(all) {
		n = len(all)
	}
	for _, a := range all[:n] {
		delete(c.entries, a.key)
	}
	c.stats.Evictions += int64(n)
	return n
}

func (c *memoryBackend) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.CurrentSize = len(c.entries)
	return stats
}

// deleteExpired removes all expired entries. Returns the number deleted.
func (c *memoryBackend) deleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	count := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			count++
		}
	}
	c.stats.Evictions += int64(count)
	return count
}

// Stop stops the background cleanup goroutine.
func (c *memoryBackend) Stop() {
	if c.janitor != nil {
		close(c.janitor.stop)
	}
}

// janitor performs periodic cleanup of expired entries.
type janitor struct {
	interval time.Duration
	stop     chan struct{}
}

func (j *janitor) run(c *memoryBackend) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-j.stop:
			return
		}
	}
}
