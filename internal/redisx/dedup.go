package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dedup remembers processed event keys for TTL.
type Dedup struct {
	Redis   redis.Cmdable
	Service string
	TTL     time.Duration
}

func (d *Dedup) key(provider, eventID string) string {
	return fmt.Sprintf(KeyDedup, d.Service, provider, eventID)
}

func (d *Dedup) Seen(ctx context.Context, provider, eventID string) (bool, error) {
	return Exists(ctx, d.Redis, d.key(provider, eventID))
}

// Mark records the event as processed.
func (d *Dedup) Mark(ctx context.Context, provider, eventID string) error {
	ttl := d.TTL
	if ttl <= 0 {
		ttl = TTLDedup
	}
	return d.Redis.Set(ctx, d.key(provider, eventID), "1", ttl).Err()
}
