// Package cache provides a TTL cache for LLM-backed helpers with an optional
// Redis tier and graceful degradation, plus a sliding-window rate limiter.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"quantumedge-supervisor/config"
	"quantumedge-supervisor/internal/logging"

	"github.com/redis/go-redis/v9"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// TTLCache stores string values with per-entry TTL. When a Redis tier is
// attached, reads check memory first then Redis; writes go to both. Redis
// failures degrade to memory-only via a small failure counter, mirroring the
// graceful-degradation contract of the rest of the system.
type TTLCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time

	redis        *redis.Client
	redisHealthy bool
	failureCount int
	maxFailures  int
	log          *logging.Logger
}

// NewTTLCache creates a memory-only cache.
func NewTTLCache(log *logging.Logger) *TTLCache {
	return &TTLCache{
		entries:     make(map[string]entry),
		now:         time.Now,
		maxFailures: 3,
		log:         log.WithComponent("cache"),
	}
}

// NewTTLCacheWithRedis creates a cache backed by Redis. A failed initial ping
// returns a working memory-only cache; Redis is retried on use.
func NewTTLCacheWithRedis(cfg config.RedisConfig, log *logging.Logger) *TTLCache {
	c := NewTTLCache(log)
	if !cfg.Enabled {
		return c
	}

	c.redis = redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 1,
		MaxRetries:   2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx).Err(); err != nil {
		c.log.Warn("redis unavailable, memory-only cache", "address", cfg.Address, "error", err)
		return c
	}

	c.redisHealthy = true
	c.log.Info("redis cache tier connected", "address", cfg.Address)
	return c
}

// Get returns the cached value and whether it was present and unexpired.
func (c *TTLCache) Get(ctx context.Context, key string) (string, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	healthy := c.redisHealthy
	c.mu.RUnlock()

	if ok && c.now().Before(e.expiresAt) {
		return e.value, true
	}

	if c.redis != nil && healthy {
		val, err := c.redis.Get(ctx, key).Result()
		if err == nil {
			c.recordSuccess()
			return val, true
		}
		if err != redis.Nil {
			c.recordFailure(err)
		}
	}
	return "", false
}

// Set stores a value under key for ttl in memory and, when healthy, Redis.
func (c *TTLCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
	healthy := c.redisHealthy
	c.mu.Unlock()

	if c.redis != nil && healthy {
		if err := c.redis.Set(ctx, key, value, ttl).Err(); err != nil {
			c.recordFailure(err)
		} else {
			c.recordSuccess()
		}
	}
}

// GetJSON unmarshals a cached JSON value into dest.
func (c *TTLCache) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false
	}
	return true
}

// SetJSON marshals and stores a JSON value.
func (c *TTLCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	c.Set(ctx, key, string(data), ttl)
	return nil
}

// Prune drops expired memory entries.
func (c *TTLCache) Prune() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

// Stats returns cache statistics for monitoring.
func (c *TTLCache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return map[string]interface{}{
		"entries":       len(c.entries),
		"redis_enabled": c.redis != nil,
		"redis_healthy": c.redisHealthy,
		"failure_count": c.failureCount,
	}
}

// Close releases the Redis connection if present.
func (c *TTLCache) Close() error {
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}

func (c *TTLCache) recordFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount++
	if c.failureCount >= c.maxFailures && c.redisHealthy {
		c.redisHealthy = false
		c.log.Warn("redis marked unhealthy, degrading to memory-only", "failures", c.failureCount, "error", err)
	}
}

func (c *TTLCache) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.redisHealthy && c.redis != nil {
		c.log.Info("redis recovered")
		c.redisHealthy = true
	}
	c.failureCount = 0
}
