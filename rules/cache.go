package rules

import (
	"sync"
	"time"
)

// RulesCache caches the active-rules list between evaluation ticks so a
// FireAll call does not hit the store every time.
type RulesCache interface {
	// Get retrieves cached rules, nil on miss or expiry.
	Get() []Rule

	// Set stores rules in the cache.
	Set(rules []Rule)

	// Invalidate clears the cache, forcing a refresh on next Get.
	Invalidate()
}

// CacheConfig controls cache expiry.
type CacheConfig struct {
	// TTL for cached entries; 0 means manual invalidation only.
	TTL time.Duration
}

// DefaultCacheConfig invalidates only on rule mutations.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}

// InMemoryRulesCache is a mutex-guarded RulesCache.
type InMemoryRulesCache struct {
	rules    []Rule
	cachedAt time.Time
	config   CacheConfig
	valid    bool
	mu       sync.RWMutex
}

// NewInMemoryRulesCache creates an invalid (empty) cache.
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	return &InMemoryRulesCache{config: config}
}

func (c *InMemoryRulesCache) Get() []Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.valid {
		return nil
	}
	if c.config.TTL > 0 && time.Since(c.cachedAt) > c.config.TTL {
		return nil
	}

	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

func (c *InMemoryRulesCache) Set(rules []Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rules = make([]Rule, len(rules))
	copy(c.rules, rules)
	c.cachedAt = time.Now()
	c.valid = true
}

func (c *InMemoryRulesCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.valid = false
	c.rules = nil
}
