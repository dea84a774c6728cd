// Package cache provides a generic in-process TTL cache, used by
// storage/index to avoid re-scanning its backend for a manifest id
// that was just looked up, without introducing an external caching
// dependency.
package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value      interface{}
	expiration time.Time
}

// Config tunes a Cache's defaults and background sweep.
type Config struct {
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
}

func defaultConfig() Config {
	return Config{
		DefaultTTL:      5 * time.Minute,
		CleanupInterval: 10 * time.Minute,
	}
}

// Cache is a keyed, TTL-expiring in-process store. Expired entries are
// swept periodically by a background goroutine so a cache that accumulates
// many short-lived keys does not grow unbounded between reads.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	config  Config
}

// NewCache constructs a Cache and starts its cleanup goroutine.
func NewCache(cfg Config) *Cache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = defaultConfig().DefaultTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultConfig().CleanupInterval
	}

	c := &Cache{
		entries: make(map[string]entry),
		config:  cfg,
	}
	go c.runCleanup()
	return c
}

func (c *Cache) runCleanup() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()
	for range ticker.C {
		c.sweepExpired()
	}
}

func (c *Cache) sweepExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for key, e := range c.entries {
		if now.After(e.expiration) {
			delete(c.entries, key)
		}
	}
}

// Get returns the cached value for key, or ok=false if absent or expired.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiration) {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with ttl (the Cache's DefaultTTL when ttl<=0).
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiration: time.Now().Add(ttl)}
}

// Invalidate drops key, if present.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Size reports the number of entries currently held, expired or not.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// TTLCache is a Cache fixed to a single TTL, with a context.Context
// parameter on every method so its call sites read like any other
// cancellable lookup even though the underlying store never blocks.
type TTLCache struct {
	cache *Cache
}

// NewTTLCache constructs a TTLCache whose entries expire after ttl.
func NewTTLCache(ttl time.Duration) *TTLCache {
	return &TTLCache{cache: NewCache(Config{DefaultTTL: ttl})}
}

func (c *TTLCache) Get(ctx context.Context, key string) (interface{}, bool) {
	return c.cache.Get(key)
}

func (c *TTLCache) Set(ctx context.Context, key string, value interface{}) {
	c.cache.Set(key, value, 0)
}

func (c *TTLCache) Delete(ctx context.Context, key string) {
	c.cache.Invalidate(key)
}
