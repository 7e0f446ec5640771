// Package cache provides TTL caches behind port.Cache: an in-process one
// backed by go-cache and a shared one backed by Redis.
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// InMemory is a thread-safe in-process cache with TTL.
type InMemory[T any] struct {
	c *gocache.Cache
}

// New creates a new in-memory cache with the given TTL.
// Expired entries are purged every TTL.
func New[T any](ttl time.Duration) *InMemory[T] {
	return &InMemory[T]{c: gocache.New(ttl, ttl)}
}

// Get retrieves a value from the cache. Returns false if not found or expired.
func (m *InMemory[T]) Get(_ context.Context, key string) (T, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

// Set stores a value in the cache with the configured TTL.
func (m *InMemory[T]) Set(_ context.Context, key string, value T) {
	m.c.SetDefault(key, value)
}

// Delete removes a value from the cache.
func (m *InMemory[T]) Delete(_ context.Context, key string) {
	m.c.Delete(key)
}
