package aggregator

import (
	"context"

	"github.com/smallbiznis/campaignbridge/internal/cache"
	"github.com/smallbiznis/campaignbridge/internal/campaign/domain"
)

// CachedTagResolver serves tags from memory and fetches only the misses,
// in a single batched call.
type CachedTagResolver struct {
	next  domain.TagResolver
	cache cache.ProductTagCache
}

func NewCachedTagResolver(next domain.TagResolver, c cache.ProductTagCache) *CachedTagResolver {
	return &CachedTagResolver{next: next, cache: c}
}

func (r *CachedTagResolver) ProductTags(ctx context.Context, productGIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(productGIDs))
	misses := make([]string, 0, len(productGIDs))
	for _, id := range productGIDs {
		if tags, ok := r.cache.Get(id); ok {
			out[id] = tags
			continue
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := r.next.ProductTags(ctx, misses)
	if err != nil {
		return nil, err
	}
	for _, id := range misses {
		tags := fetched[id]
		r.cache.Set(id, tags)
		out[id] = tags
	}
	return out, nil
}
