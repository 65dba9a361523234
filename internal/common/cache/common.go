package cache

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"math/big"
	"time"
)

// NullCacheValue marks a cached absence so missing rows are not re-queried.
const NullCacheValue = "$NULL$"

// Codec serialises cached values.
type Codec[T any] struct {
	Marshal   func(T) (string, error)
	Unmarshal func(string) (T, error)
}

// JSONCodec encodes values as JSON.
func JSONCodec[T any]() Codec[T] {
	return Codec[T]{
		Marshal: func(v T) (string, error) {
			b, err := json.Marshal(v)
			return string(b), err
		},
		Unmarshal: func(s string) (T, error) {
			var v T
			err := json.Unmarshal([]byte(s), &v)
			return v, err
		},
	}
}

// Policy controls TTLs of a cache-aside read.
type Policy struct {
	TTL      time.Duration
	EmptyTTL time.Duration
}

// GetWithCached reads key from c, falling back to fn on a miss and caching the
// result. found=false from fn is cached as NullCacheValue for EmptyTTL. Cache
// failures degrade to a direct fn call.
func GetWithCached[T any](
	ctx context.Context,
	c Cache,
	key string,
	policy Policy,
	codec Codec[T],
	fn func(context.Context) (T, bool, error),
) (T, bool, error) {
	var zero T

	if cached, err := c.Get(ctx, key); err == nil && cached != "" {
		if cached == NullCacheValue {
			return zero, false, nil
		}
		if v, err := codec.Unmarshal(cached); err == nil {
			return v, true, nil
		}
	}

	v, found, err := fn(ctx)
	if err != nil {
		return zero, false, err
	}
	if !found {
		if policy.EmptyTTL > 0 {
			_ = c.Set(ctx, key, NullCacheValue, JitterTTL(policy.EmptyTTL))
		}
		return zero, false, nil
	}
	if payload, err := codec.Marshal(v); err == nil {
		_ = c.Set(ctx, key, payload, JitterTTL(policy.TTL))
	}
	return v, true, nil
}

// UpdateCached runs fn and then invalidates keys.
func UpdateCached(ctx context.Context, c Cache, fn func(context.Context) error, keys ...string) error {
	if err := fn(ctx); err != nil {
		return err
	}
	_ = c.Del(ctx, keys...)
	return nil
}

// JitterTTL shortens ttl by up to 10% so keys written together do not expire together.
func JitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttl
	}
	maxJitter := int64(ttl / 10)
	if maxJitter <= 0 {
		return ttl
	}
	n, err := rand.Int(rand.Reader, big.NewInt(maxJitter+1))
	if err != nil {
		return ttl
	}
	return ttl - time.Duration(n.Int64())
}
