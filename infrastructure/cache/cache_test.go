package cache

import (
	"context"
	"testing"
	"time"
)

func TestCacheGetSetInvalidate(t *testing.T) {
	c := NewCache(Config{DefaultTTL: time.Minute})

	if _, ok := c.Get("k"); ok {
		t.Fatal("Get on empty cache returned ok=true")
	}

	c.Set("k", "v", 0)
	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Fatalf("Get = %v, %v, want v, true", got, ok)
	}

	c.Invalidate("k")
	if _, ok := c.Get("k"); ok {
		t.Fatal("Get after Invalidate returned ok=true")
	}
}

func TestCacheEntryExpiresAfterTTL(t *testing.T) {
	c := NewCache(Config{DefaultTTL: time.Minute})
	c.Set("k", "v", 10*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("Get returned a value past its TTL")
	}
}

func TestTTLCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	tc := NewTTLCache(time.Minute)

	tc.Set(ctx, "m1", 42)
	got, ok := tc.Get(ctx, "m1")
	if !ok || got != 42 {
		t.Fatalf("Get = %v, %v, want 42, true", got, ok)
	}

	tc.Delete(ctx, "m1")
	if _, ok := tc.Get(ctx, "m1"); ok {
		t.Fatal("Get after Delete returned ok=true")
	}
}
