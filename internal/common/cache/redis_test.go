package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ucode/internal/common/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("NewRedisCacheWithClient() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCache_GetMissingIsEmpty(t *testing.T) {
	c, _ := newTestCache(t)
	got, err := c.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "" {
		t.Errorf("Get() = %q, want empty", got)
	}
}

func TestRedisCache_SetNX(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "idem", "processing", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX() = %v, %v; want true, nil", ok, err)
	}
	ok, err = c.SetNX(ctx, "idem", "other", time.Minute)
	if err != nil || ok {
		t.Fatalf("second SetNX() = %v, %v; want false, nil", ok, err)
	}
	if got, _ := c.Get(ctx, "idem"); got != "processing" {
		t.Errorf("Get() = %q, want processing", got)
	}
}

func TestRedisCache_IncrWindow(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := c.IncrWindow(ctx, "rl:user:1", 10*time.Second)
		if err != nil {
			t.Fatalf("IncrWindow() error = %v", err)
		}
		if got != want {
			t.Errorf("IncrWindow() = %d, want %d", got, want)
		}
	}
	if ttl := mr.TTL("rl:user:1"); ttl <= 0 || ttl > 10*time.Second {
		t.Errorf("TTL = %v, want within window", ttl)
	}

	mr.FastForward(11 * time.Second)
	got, err := c.IncrWindow(ctx, "rl:user:1", 10*time.Second)
	if err != nil {
		t.Fatalf("IncrWindow() error = %v", err)
	}
	if got != 1 {
		t.Errorf("IncrWindow() after window = %d, want 1", got)
	}
}

type row struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func TestGetWithCached(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	policy := cache.Policy{TTL: time.Minute, EmptyTTL: 10 * time.Second}

	calls := 0
	load := func(context.Context) (row, bool, error) {
		calls++
		return row{ID: 1, Name: "cpp"}, true, nil
	}

	for i := 0; i < 3; i++ {
		got, found, err := cache.GetWithCached(ctx, c, "lang:cpp", policy, cache.JSONCodec[row](), load)
		if err != nil || !found {
			t.Fatalf("GetWithCached() = %v, %v, %v", got, found, err)
		}
		if got.Name != "cpp" {
			t.Errorf("GetWithCached() name = %q, want cpp", got.Name)
		}
	}
	if calls != 1 {
		t.Errorf("loader called %d times, want 1", calls)
	}
}

func TestGetWithCached_CachesAbsence(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	policy := cache.Policy{TTL: time.Minute, EmptyTTL: 10 * time.Second}

	calls := 0
	load := func(context.Context) (row, bool, error) {
		calls++
		return row{}, false, nil
	}
	for i := 0; i < 2; i++ {
		_, found, err := cache.GetWithCached(ctx, c, "lang:cobol", policy, cache.JSONCodec[row](), load)
		if err != nil || found {
			t.Fatalf("GetWithCached() found = %v, err = %v", found, err)
		}
	}
	if calls != 1 {
		t.Errorf("loader called %d times, want 1", calls)
	}
	if got, _ := c.Get(ctx, "lang:cobol"); got != cache.NullCacheValue {
		t.Errorf("cached value = %q, want null marker", got)
	}
}

func TestGetWithCached_LoaderError(t *testing.T) {
	c, _ := newTestCache(t)
	boom := errors.New("db down")
	_, _, err := cache.GetWithCached(context.Background(), c, "k", cache.Policy{TTL: time.Minute}, cache.JSONCodec[row](),
		func(context.Context) (row, bool, error) { return row{}, false, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("GetWithCached() error = %v, want %v", err, boom)
	}
	if got, _ := c.Get(context.Background(), "k"); got != "" {
		t.Errorf("error result was cached: %q", got)
	}
}

func TestUpdateCached(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	_ = c.Set(ctx, "a", "1", time.Minute)
	_ = c.Set(ctx, "b", "2", time.Minute)

	if err := cache.UpdateCached(ctx, c, func(context.Context) error { return nil }, "a", "b"); err != nil {
		t.Fatalf("UpdateCached() error = %v", err)
	}
	if got, _ := c.Get(ctx, "a"); got != "" {
		t.Errorf("key a not invalidated")
	}

	_ = c.Set(ctx, "a", "1", time.Minute)
	boom := errors.New("write failed")
	if err := cache.UpdateCached(ctx, c, func(context.Context) error { return boom }, "a"); !errors.Is(err, boom) {
		t.Fatalf("UpdateCached() error = %v, want %v", err, boom)
	}
	if got, _ := c.Get(ctx, "a"); got != "1" {
		t.Errorf("key invalidated after failed write")
	}
}

func TestJitterTTL(t *testing.T) {
	ttl := time.Minute
	for i := 0; i < 20; i++ {
		got := cache.JitterTTL(ttl)
		if got > ttl || got < ttl-ttl/10 {
			t.Fatalf("JitterTTL() = %v, outside [%v, %v]", got, ttl-ttl/10, ttl)
		}
	}
	if got := cache.JitterTTL(0); got != 0 {
		t.Errorf("JitterTTL(0) = %v", got)
	}
}
