// Package idempotency implements the dispatch idempotency-key cache of
// SPEC_FULL §4.1/§9, grounded on the same Redis-Lua reference module as
// internal/adapter/lock (internal/service/ratelimiter/redis_lua_limiter.go),
// here reduced to a plain SET NX EX reservation since no refill math is
// needed for a one-shot cache.
package idempotency

import (
	"time"

	"github.com/TIGERVENENO/persona-feedback-engine/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisCache implements domain.IdempotencyCache over Redis string keys.
type RedisCache struct {
	redis *redis.Client
}

// NewRedisCache constructs a RedisCache against rdb.
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{redis: rdb}
}

// Reserve attempts to atomically claim key for value. If the key is
// already held, the value it was first reserved with is returned
// alongside found=true so the caller can replay the prior result
// instead of re-dispatching (§4.1 "Idempotent dispatch").
func (c *RedisCache) Reserve(ctx domain.Context, key, value string, ttl time.Duration) (string, bool, error) {
	ok, err := c.redis.SetNX(ctx, "idem:"+key, value, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return value, false, nil
	}
	existing, err := c.redis.Get(ctx, "idem:"+key).Result()
	if err != nil {
		if err == redis.Nil {
			// Key expired between the failed SETNX and this GET; treat
			// as a fresh reservation miss rather than erroring.
			return value, false, nil
		}
		return "", false, err
	}
	return existing, true, nil
}
