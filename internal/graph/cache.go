package graph

import (
	"context"
	"time"

	"github.com/p-blackswan/reply-agent/lru"
)

// MediaLister is the listing capability CachedLister wraps.
type MediaLister interface {
	ListMedia(ctx context.Context) ([]Media, error)
}

// CachedLister caches media listings for a short TTL. The management API
// hits ListMedia on every rule-creation page load; caching keeps that
// traffic off the provider's rate budget.
type CachedLister struct {
	inner MediaLister
	cache *lru.Cache[string, []Media]
}

const mediaCacheKey = "media"

// NewCachedLister wraps inner with a TTL cache. Default TTL: 30s.
func NewCachedLister(inner MediaLister, ttl time.Duration) *CachedLister {
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &CachedLister{
		inner: inner,
		cache: lru.New[string, []Media](1, lru.WithTTL[string, []Media](ttl)),
	}
}

// ListMedia returns the cached listing when fresh, otherwise fetches and
// caches. Fetch errors are never cached.
func (c *CachedLister) ListMedia(ctx context.Context) ([]Media, error) {
	if media, ok := c.cache.Get(mediaCacheKey); ok {
		return media, nil
	}

	media, err := c.inner.ListMedia(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Put(mediaCacheKey, media)
	return media, nil
}
