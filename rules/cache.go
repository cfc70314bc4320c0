package rules

import "time"

// RuleSetCache caches the active rule sets so session setup does not hit
// the database on every request. Implementations may be in-memory, Redis,
// or anything else.
type RuleSetCache interface {
	// Get retrieves cached rule sets, nil on miss or expiry
	Get() []*RuleSet

	// GetForm retrieves the cached rule set for one form, nil on miss
	GetForm(formID string) *RuleSet

	// Set stores rule sets in cache
	Set(sets []*RuleSet)

	// Invalidate clears the cache, forcing a refresh on next Get
	Invalidate()

	// IsValid returns true if the cache has valid data
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior.
type CacheConfig struct {
	// TTL is the time-to-live for cached entries.
	// Zero means no expiration; invalidation is manual only.
	TTL time.Duration
}

// DefaultCacheConfig returns sensible defaults for rule set caching.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL: 0, // invalidate on mutations only
	}
}
