package infra

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// JSONCache is a read-through helper over Redis. Every call goes through the
// circuit breaker; any Redis failure degrades to a miss and is never returned
// to the caller. A nil *JSONCache is valid and always misses.
type JSONCache struct {
	rdb *redis.Client
	cb  *CircuitBreaker
	ttl time.Duration
}

func NewJSONCache(rdb *redis.Client, cb *CircuitBreaker, ttl time.Duration) *JSONCache {
	if rdb == nil {
		return nil
	}
	if cb == nil {
		cb = NewCircuitBreaker("redis", DefaultCBConfig())
	}
	return &JSONCache{rdb: rdb, cb: cb, ttl: ttl}
}

// Get decodes the entry at key into dst and reports whether it was found.
func (c *JSONCache) Get(ctx context.Context, key string, dst interface{}) bool {
	if c == nil {
		return false
	}
	var raw []byte
	err := c.cb.Execute(func() error {
		b, err := c.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		raw = b
		return err
	})
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("cache get skipped")
		return false
	}
	if raw == nil {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache entry undecodable, ignoring")
		return false
	}
	return true
}

// Set stores v at key with the cache TTL. Best effort.
func (c *JSONCache) Set(ctx context.Context, key string, v interface{}) {
	if c == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.cb.Execute(func() error { return c.rdb.Set(ctx, key, b, c.ttl).Err() }); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("cache set skipped")
	}
}

// Delete drops the given keys.
func (c *JSONCache) Delete(ctx context.Context, keys ...string) error {
	if c == nil || len(keys) == 0 {
		return nil
	}
	return c.cb.Execute(func() error { return c.rdb.Del(ctx, keys...).Err() })
}

// MetricsKey is the cache key of a product's derived metrics.
func MetricsKey(productID string) string { return "metrics:" + productID }
