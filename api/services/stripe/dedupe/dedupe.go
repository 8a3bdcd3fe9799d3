// Package dedupe remembers which provider events were already applied so that
// webhook retries short-circuit before touching the ledger. The ledger writes are
// idempotent on their own; the marker only saves work.
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL outlives the provider's retry window for a single event.
const DefaultTTL = 72 * time.Hour

const keyPrefix = "fanvault:stripe:event:"

// Marker records processed event ids.
type Marker interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// RedisMarker stores one key per event with a TTL.
type RedisMarker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisMarker(rdb *redis.Client, ttl time.Duration) *RedisMarker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisMarker{rdb: rdb, ttl: ttl}
}

func (m *RedisMarker) Seen(ctx context.Context, eventID string) (bool, error) {
	_, err := m.rdb.Get(ctx, keyPrefix+eventID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get: %w", err)
	}
	return true, nil
}

func (m *RedisMarker) Mark(ctx context.Context, eventID string) error {
	if err := m.rdb.SetNX(ctx, keyPrefix+eventID, time.Now().Unix(), m.ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}

// Nop never reports an event as seen.
type Nop struct{}

func (Nop) Seen(context.Context, string) (bool, error) { return false, nil }
func (Nop) Mark(context.Context, string) error         { return nil }
