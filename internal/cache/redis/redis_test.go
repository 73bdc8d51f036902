package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/an-empty-string/amethyst/internal/cache/redis"
)

func TestNewFailsFastWhenUnreachable(t *testing.T) {
	cfg := &redis.Config{Addr: "localhost:59999", DialTimeout: 100 * time.Millisecond}
	if _, err := redis.New(cfg); err == nil {
		t.Fatal("expected error connecting to unreachable redis")
	}
}

func TestIncrementPreservesWindow(t *testing.T) {
	s := miniredis.RunT(t)
	c, err := redis.New(&redis.Config{Addr: s.Addr(), DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		count, err := c.Increment(ctx, "counter", 1, time.Minute)
		if err != nil {
			t.Fatalf("Increment %d: %v", i, err)
		}
		if count != int64(i) {
			t.Errorf("increment %d: got %d", i, count)
		}
		s.FastForward(10 * time.Second)
	}

	// The TTL is set by the first increment only: 60s minus five 10s steps.
	if ttl := s.TTL("counter"); ttl != 10*time.Second {
		t.Errorf("TTL = %v, want 10s (window not reset by later increments)", ttl)
	}

	count, err := c.GetCount(ctx, "counter")
	if err != nil {
		t.Fatalf("GetCount: %v", err)
	}
	if count != 5 {
		t.Errorf("GetCount = %d, want 5", count)
	}
}

func TestSetGetDelete(t *testing.T) {
	s := miniredis.RunT(t)
	c, err := redis.New(&redis.Config{Addr: s.Addr(), DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "key1", []byte("value1"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, err := c.Get(ctx, "key1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(val) != "value1" {
		t.Errorf("Get = %q", val)
	}

	exists, err := c.Exists(ctx, "key1")
	if err != nil || !exists {
		t.Fatalf("Exists = %v, %v", exists, err)
	}

	if err := c.Delete(ctx, "key1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	exists, _ = c.Exists(ctx, "key1")
	if exists {
		t.Error("expected key to be gone after Delete")
	}
}

func TestReset(t *testing.T) {
	s := miniredis.RunT(t)
	c, err := redis.New(&redis.Config{Addr: s.Addr(), DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if _, err := c.Increment(ctx, "counter", 100, time.Minute); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if err := c.Reset(ctx, "counter"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	count, err := c.GetCount(ctx, "counter")
	if err != nil || count != 0 {
		t.Errorf("GetCount after reset = %d, %v", count, err)
	}
}
