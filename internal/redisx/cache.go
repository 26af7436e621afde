package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// QueryCache stores JSON-encoded query results under KeyQuery.
type QueryCache struct {
	Redis redis.Cmdable
}

func (c *QueryCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, err := c.Redis.Get(ctx, fmt.Sprintf(KeyQuery, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

func (c *QueryCache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Redis.Set(ctx, fmt.Sprintf(KeyQuery, key), b, ttl).Err()
}
