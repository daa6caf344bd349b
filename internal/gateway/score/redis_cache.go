package score

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache backs the "cached" provider's remote cache option.
// Adapted from the OCX backend's internal/infra.GoRedisAdapter: same
// go-redis v9 client, same treatment of redis.Nil as "not found" rather
// than an error.
type RedisCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache wraps an already-connected *redis.Client.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl, prefix: "trustgate:score:"}
}

func (c *RedisCache) Get(ctx context.Context, principalID string) (int, bool, error) {
	val, err := c.rdb.Get(ctx, c.prefix+principalID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis score cache get failed: %w", err)
	}
	s, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("redis score cache held non-integer value: %w", err)
	}
	return s, true, nil
}

func (c *RedisCache) Set(ctx context.Context, principalID string, s int) error {
	if err := c.rdb.Set(ctx, c.prefix+principalID, s, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis score cache set failed: %w", err)
	}
	return nil
}
