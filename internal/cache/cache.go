// Package cache provides the pluggable key-value/counter store backing
// connection-level rate limiting (§B.6). Drivers register themselves by
// name via RegisterDriver from their own init(); callers build one with
// NewFromConfig.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrExpired  = errors.New("key expired")
)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]DriverFactory)
)

// DriverFactory builds a cache instance from driver-specific config (the
// contents of a config's [ratelimit.drivers.<name>] table). config may be
// nil; a factory must apply its own defaults in that case.
type DriverFactory func(config map[string]any) CacheWithCounter

// RegisterDriver registers a cache driver by name. Called from a driver
// package's init().
func RegisterDriver(name string, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// NewDefault returns the default cache (in-memory, default settings).
// Panics if the memory driver isn't registered — callers must blank-import
// internal/cache/loader (or internal/cache/memory directly).
func NewDefault() CacheWithCounter {
	return newByDriver("memory", nil)
}

// NewFromConfig builds a cache for the named driver. An empty driver
// defaults to "memory". Returns an error if the driver is unknown.
func NewFromConfig(driver string, driversConfig map[string]any) (CacheWithCounter, error) {
	if driver == "" {
		driver = "memory"
	}

	driversMu.RLock()
	factory, ok := drivers[driver]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown cache driver %q", driver)
	}

	var driverConfig map[string]any
	if driversConfig != nil {
		if cfg, ok := driversConfig[driver]; ok {
			if cfgMap, ok := cfg.(map[string]any); ok {
				driverConfig = cfgMap
			}
		}
	}

	return factory(driverConfig), nil
}

func newByDriver(name string, config map[string]any) CacheWithCounter {
	driversMu.RLock()
	factory, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		panic(fmt.Sprintf("cache driver %q not registered; blank-import internal/cache/loader", name))
	}
	return factory(config)
}

// Cache provides TTL-based key-value storage.
type Cache interface {
	// Get retrieves a value by key. Returns ErrNotFound if absent,
	// ErrExpired if present but past its TTL.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. TTL of 0 uses the driver's
	// default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	Close() error
}

// Counter provides the atomic increment operation rate limiting needs.
type Counter interface {
	// Increment adds delta to the counter at key, creating it with the
	// given TTL if absent, and returns the new total.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// GetCount returns the current value, or 0 if the key is absent or
	// expired.
	GetCount(ctx context.Context, key string) (int64, error)

	// Reset clears the counter at key.
	Reset(ctx context.Context, key string) error
}

// CacheWithCounter is what drivers implement: a Cache that can also count.
type CacheWithCounter interface {
	Cache
	Counter
}

// TTLConnRateLimit is the default admission-control window.
const TTLConnRateLimit = time.Minute
