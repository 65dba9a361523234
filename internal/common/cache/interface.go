package cache

import (
	"context"
	"time"
)

// Cache is the subset of key-value operations the submission service relies on:
// cache-aside reads, idempotency markers and fixed-window counters.
type Cache interface {
	// Get returns "" and a nil error when the key does not exist.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// SetNX sets the value only if the key does not exist.
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	// IncrWindow increments key and starts its expiry on the first increment.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
