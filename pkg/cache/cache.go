// Package cache provides an optional product cache with an in-memory LRU
// tier and an optional Redis tier.
//
// The cache holds encoded product records keyed by identifier. It only
// exists to avoid repeating network fetches when a batch interrupted
// mid-flight is redone after a restart; batch artifacts on disk remain the
// sole completion signal, the cache never is.
package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Cache is a two-tier (memory, Redis) product cache.
type Cache struct {
	mem    *lru.Cache[string, entry]
	redis  *redis.Client // nil disables the Redis tier
	ttl    time.Duration
	logger zerolog.Logger
}

type entry struct {
	data    []byte
	expires time.Time
}

func (e entry) expired() bool {
	return time.Now().After(e.expires)
}

// New creates a cache with the given memory tier size and entry TTL.
// redisClient may be nil for a memory-only cache.
func New(size int, ttl time.Duration, redisClient *redis.Client, logger zerolog.Logger) (*Cache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be positive (got %d)", size)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive (got %s)", ttl)
	}

	mem, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("create memory tier: %w", err)
	}

	return &Cache{
		mem:    mem,
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Get returns the cached record for an identifier, checking the memory tier
// first and falling back to Redis. Misses and errors both report ok=false;
// cache errors are logged, never propagated, so a broken cache degrades to
// plain fetching.
func (c *Cache) Get(ctx context.Context, id string) (data []byte, ok bool) {
	if e, found := c.mem.Get(key(id)); found {
		if e.expired() {
			c.mem.Remove(key(id))
		} else {
			cacheHits.WithLabelValues("memory").Inc()
			return e.data, true
		}
	}

	if c.redis != nil {
		data, err := c.redis.Get(ctx, key(id)).Bytes()
		if err == nil {
			cacheHits.WithLabelValues("redis").Inc()
			// Populate the memory tier for subsequent lookups.
			c.mem.Add(key(id), entry{data: data, expires: time.Now().Add(c.ttl)})
			return data, true
		}
		if err != redis.Nil {
			cacheErrors.WithLabelValues("get").Inc()
			c.logger.Warn().Err(err).Str("id", id).Msg("Redis cache get failed")
		}
	}

	cacheMisses.Inc()
	return nil, false
}

// Set stores a record in both tiers with the configured TTL.
func (c *Cache) Set(ctx context.Context, id string, data []byte) error {
	c.mem.Add(key(id), entry{data: data, expires: time.Now().Add(c.ttl)})

	if c.redis != nil {
		if err := c.redis.Set(ctx, key(id), data, c.ttl).Err(); err != nil {
			cacheErrors.WithLabelValues("set").Inc()
			return fmt.Errorf("redis set: %w", err)
		}
	}
	return nil
}

// Len returns the number of entries in the memory tier.
func (c *Cache) Len() int {
	return c.mem.Len()
}

func key(id string) string {
	return "tiki:product:" + id
}
