package rules

import (
	"sync"
	"time"
)

// InMemoryRuleSetCache is a thread-safe in-memory RuleSetCache.
type InMemoryRuleSetCache struct {
	sets     []*RuleSet
	byForm   map[string]*RuleSet
	cachedAt time.Time
	config   CacheConfig
	isValid  bool
	mu       sync.RWMutex
}

// NewInMemoryRuleSetCache creates a new in-memory rule set cache.
func NewInMemoryRuleSetCache(config CacheConfig) *InMemoryRuleSetCache {
	return &InMemoryRuleSetCache{config: config}
}

// Get retrieves cached rule sets, nil when invalid or expired.
func (c *InMemoryRuleSetCache) Get() []*RuleSet {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.fresh() {
		return nil
	}

	out := make([]*RuleSet, len(c.sets))
	copy(out, c.sets)
	return out
}

// GetForm retrieves the cached active rule set for a form.
func (c *InMemoryRuleSetCache) GetForm(formID string) *RuleSet {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.fresh() {
		return nil
	}
	return c.byForm[formID]
}

// Set stores rule sets in the cache. The last entry per form wins, matching
// store ordering.
func (c *InMemoryRuleSetCache) Set(sets []*RuleSet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sets = make([]*RuleSet, len(sets))
	copy(c.sets, sets)

	c.byForm = make(map[string]*RuleSet, len(sets))
	for _, rs := range sets {
		c.byForm[rs.FormID] = rs
	}

	c.cachedAt = time.Now()
	c.isValid = true
}

// Invalidate clears the cache.
func (c *InMemoryRuleSetCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.isValid = false
	c.sets = nil
	c.byForm = nil
}

// IsValid reports whether the cache holds usable data.
func (c *InMemoryRuleSetCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fresh()
}

// fresh must be called with the lock held.
func (c *InMemoryRuleSetCache) fresh() bool {
	if !c.isValid {
		return false
	}
	if c.config.TTL > 0 {
		return time.Since(c.cachedAt) <= c.config.TTL
	}
	return true
}
