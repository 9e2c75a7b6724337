package cache

import (
	"testing"
	"time"

	"github.com/smallbiznis/campaignbridge/internal/clock"
)

func TestTTLCacheExpires(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewTTLCacheWithClock[string, int](clk.Now)

	c.Set("a", 1, time.Minute)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected hit, got %v %v", v, ok)
	}

	clk.Advance(time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected expiry at ttl boundary")
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry to be evicted")
	}
}

func TestTTLCacheIgnoresNonPositiveTTL(t *testing.T) {
	c := NewTTLCache[string, int]()
	c.Set("a", 1, 0)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected zero ttl to skip caching")
	}
}

func TestProductTagCacheStoresEmptyTags(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewProductTagCache(time.Minute, clk.Now)

	c.Set("gid://shopify/Product/1", nil)
	tags, ok := c.Get("GID://shopify/Product/1")
	if !ok {
		t.Fatalf("expected cached miss")
	}
	if len(tags) != 0 {
		t.Fatalf("expected empty tags, got %v", tags)
	}
}
