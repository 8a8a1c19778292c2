package cache

import (
	"fmt"
	"time"

	"github.com/boogy/aws-cwt-issuer/pkg/config"
	"github.com/boogy/aws-cwt-issuer/pkg/cose"
)

// CacheDefaults holds the default configuration values for cache implementations
type CacheDefaults struct {
	TTL          time.Duration
	MaxLocalSize int
}

// Defaults provides the default configuration values for all cache implementations
var Defaults = CacheDefaults{
	TTL:          10 * time.Minute, // Default TTL for cache entries
	MaxLocalSize: 100,              // Default max local size for in-memory caches
}

// Cache holds parsed signing key sets keyed by their source
type Cache interface {
	Get(key string) (*cose.KeySet, bool)
	Set(key string, value *cose.KeySet, ttl time.Duration)
	Delete(key string)
	// Cleanup drops expired entries.
	Cleanup()
	// GetStats reports size, maxSize and expired entry counts.
	GetStats() map[string]any
}

// GetConfiguredTTL returns the TTL from config or the default if not specified
func GetConfiguredTTL(cfg *config.Config) time.Duration {
	if cfg != nil && cfg.Cache != nil && cfg.Cache.TTL > 0 {
		return cfg.Cache.TTL
	}
	return Defaults.TTL
}

// GetConfiguredMaxLocalSize returns the max local size from config or the default if not specified
func GetConfiguredMaxLocalSize(cfg *config.Config) int {
	if cfg != nil && cfg.Cache != nil && cfg.Cache.MaxLocalSize > 0 {
		return cfg.Cache.MaxLocalSize
	}
	return Defaults.MaxLocalSize
}

// NewCache creates a new cache implementation based on the configuration
func NewCache(cfg *config.Config) (Cache, error) {
	if cfg == nil || cfg.Cache == nil {
		return NewMemoryCache(), nil
	}

	cacheType := cfg.Cache.Type
	if cacheType == "" {
		cacheType = "memory"
	}

	switch cacheType {
	case "memory":
		return NewMemoryCacheWithOptions(GetConfiguredMaxLocalSize(cfg), GetConfiguredTTL(cfg)), nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cacheType)
	}
}
