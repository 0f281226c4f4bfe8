package idempotency

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cleanup := func() {
		_ = rdb.Close()
		mr.Close()
	}
	return NewRedisCache(rdb), mr, cleanup
}

func TestRedisCache_Reserve_FirstCallClaims(t *testing.T) {
	c, _, cleanup := newTestCache(t)
	defer cleanup()

	existing, found, err := c.Reserve(context.Background(), "persona:user-1:abc", "persona-1", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatal("expected found=false on a fresh key")
	}
	if existing != "persona-1" {
		t.Fatalf("expected the reserved value to be returned, got %s", existing)
	}
}

func TestRedisCache_Reserve_SecondCallReplaysFirstValue(t *testing.T) {
	c, _, cleanup := newTestCache(t)
	defer cleanup()
	ctx := context.Background()

	if _, _, err := c.Reserve(ctx, "persona:user-1:abc", "persona-1", time.Minute); err != nil {
		t.Fatalf("unexpected error on first reserve: %v", err)
	}

	existing, found, err := c.Reserve(ctx, "persona:user-1:abc", "persona-2", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("expected found=true on a replay")
	}
	if existing != "persona-1" {
		t.Fatalf("expected the original value to be replayed, got %s", existing)
	}
}

func TestRedisCache_Reserve_ExpiresAfterTTL(t *testing.T) {
	c, mr, cleanup := newTestCache(t)
	defer cleanup()
	ctx := context.Background()

	if _, _, err := c.Reserve(ctx, "persona:user-1:abc", "persona-1", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	_, found, err := c.Reserve(ctx, "persona:user-1:abc", "persona-2", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatal("expected the expired reservation to be claimable again")
	}
}
