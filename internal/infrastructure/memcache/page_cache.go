// Package memcache provides an in-process page cache for single-instance
// deployments.
package memcache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/mutugading/logquery/internal/application/logquery"
	"github.com/mutugading/logquery/internal/domain/logrecord"
)

const (
	defaultTTL        = 30 * time.Second
	defaultMaxEntries = 1000
)

// Verify interface implementation at compile time.
var _ logquery.PageCache = (*PageCache)(nil)

// PageCache keeps recent pages in memory with a fixed TTL and an upper bound
// on the number of entries. Cached pages are shared and must not be mutated.
type PageCache struct {
	cache *ttlcache.Cache[string, *logrecord.Page]
}

// NewPageCache creates a PageCache and starts its expiry loop. Call Close to
// stop it.
func NewPageCache(ttl time.Duration, maxEntries uint64) *PageCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if maxEntries == 0 {
		maxEntries = defaultMaxEntries
	}

	cache := ttlcache.New[string, *logrecord.Page](
		ttlcache.WithTTL[string, *logrecord.Page](ttl),
		ttlcache.WithCapacity[string, *logrecord.Page](maxEntries),
		ttlcache.WithDisableTouchOnHit[string, *logrecord.Page](),
	)
	go cache.Start()

	return &PageCache{cache: cache}
}

// GetPage returns the cached page for key.
func (c *PageCache) GetPage(_ context.Context, key string) (*logrecord.Page, bool, error) {
	item := c.cache.Get(key)
	if item == nil || item.IsExpired() {
		return nil, false, nil
	}
	return item.Value(), true, nil
}

// SetPage stores page under key with the default TTL.
func (c *PageCache) SetPage(_ context.Context, key string, page *logrecord.Page) error {
	c.cache.Set(key, page, ttlcache.DefaultTTL)
	return nil
}

// Close stops the expiry loop.
func (c *PageCache) Close() {
	c.cache.Stop()
}
