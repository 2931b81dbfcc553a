// Package cache defines the TTL cache capability consumed by the quota
// trackers and provides the default in-process implementation. The cache is
// a pure performance optimization on the keyed path: removing it changes
// latency, never correctness. The anonymous path is the exception: it has
// no durable backing, so its counters live only here.
package cache

import (
	"fmt"
	"time"

	expirable "github.com/go-pkgz/expirable-cache"
)

// Cache is the injected cache capability. It is constructed once at process
// start and passed to every component that needs it; implementations must be
// safe for concurrent use. Get and Set report infrastructure faults as
// errors so callers can apply their documented fallback policy.
type Cache interface {
	Get(key string) (interface{}, bool, error)
	Set(key string, value interface{}, ttl time.Duration) error
	Remove(key string) error
}

// Memory is an in-process Cache backed by go-pkgz/expirable-cache. Entries
// expire after their per-entry TTL. Suitable for single-instance deployments;
// multi-instance deployments need a shared cache or quota is tracked per
// process.
type Memory struct {
	c expirable.Cache
}

// NewMemory creates an in-process cache. defaultTTL bounds entries written
// with ttl=0; maxKeys caps memory use (0 means unbounded).
func NewMemory(defaultTTL time.Duration, maxKeys int) (*Memory, error) {
	opts := []expirable.Option{expirable.TTL(defaultTTL)}
	if maxKeys > 0 {
		opts = append(opts, expirable.MaxKeys(maxKeys))
	}
	c, err := expirable.NewCache(opts...)
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}
	return &Memory{c: c}, nil
}

// Get returns the cached value for key, if present and unexpired.
func (m *Memory) Get(key string) (interface{}, bool, error) {
	v, ok := m.c.Get(key)
	return v, ok, nil
}

// Set stores value under key with the given TTL. A ttl of 0 uses the
// cache-wide default.
func (m *Memory) Set(key string, value interface{}, ttl time.Duration) error {
	m.c.Set(key, value, ttl)
	return nil
}

// Remove drops the entry for key. Removing an absent key is a no-op.
func (m *Memory) Remove(key string) error {
	m.c.Invalidate(key)
	return nil
}

// Purge drops all entries.
func (m *Memory) Purge() {
	m.c.Purge()
}
