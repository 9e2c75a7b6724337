package cache

import (
	"strings"
	"time"
)

const defaultProductTagTTL = 5 * time.Minute

// ProductTagCache keeps product tag lookups warm between webhook deliveries.
// Products with no tags are cached too, so repeat misses stay local.
type ProductTagCache interface {
	Get(productGID string) ([]string, bool)
	Set(productGID string, tags []string)
}

type productTagCache struct {
	tags Cache[string, []string]
	ttl  time.Duration
}

func NewProductTagCache(ttl time.Duration, now func() time.Time) ProductTagCache {
	if ttl <= 0 {
		ttl = defaultProductTagTTL
	}
	return &productTagCache{
		tags: NewTTLCacheWithClock[string, []string](now),
		ttl:  ttl,
	}
}

func (c *productTagCache) Get(productGID string) ([]string, bool) {
	return c.tags.Get(cacheKey(productGID))
}

func (c *productTagCache) Set(productGID string, tags []string) {
	if strings.TrimSpace(productGID) == "" {
		return
	}
	if tags == nil {
		tags = []string{}
	}
	c.tags.Set(cacheKey(productGID), tags, c.ttl)
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
