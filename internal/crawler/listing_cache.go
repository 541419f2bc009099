package crawler

import (
	"encoding/json"
	"errors"
	"sync"

	"dkovalchuk/catalogcrawler/helpers"
	"dkovalchuk/catalogcrawler/logger"
	"dkovalchuk/catalogcrawler/services/cache"
)

const listingKeyPrefix = "listing:"

// consecutive write failures before the cache is disabled for the run
const cacheWriteFailureLimit = 3

// ListingCache is the cache-aside layer over the generic cache service,
// keyed by normalized listing URL. A cached entry whose phone field was
// masked (contains "X") is treated as a miss so the listing is re-fetched.
type ListingCache struct {
	svc cache.CacheService
	log *logger.Logger

	mu            sync.Mutex
	writeFailures int
	disabled      bool
}

// NewListingCache wraps svc; svc may be nil, yielding a cache that always misses
func NewListingCache(svc cache.CacheService) *ListingCache {
	return &ListingCache{
		svc: svc,
		log: logger.ForComponent("listing_cache"),
	}
}

// Key returns the cache key for a listing URL
func Key(url string) string {
	return listingKeyPrefix + helpers.NormalizeURL(url)
}

// Get returns the cached detail for url, or nil on any kind of miss:
// absent key, unreadable value, or a masked phone. Read errors never fail
// the crawl; they just force a live fetch.
func (c *ListingCache) Get(url string) *ListingDetail {
	if c.svc == nil || c.isDisabled() {
		return nil
	}
	value, err := c.svc.Get(Key(url))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.log.Warn().Str("url", url).Err(err).Msg("Cache read failed, fetching live")
		}
		return nil
	}

	var detail ListingDetail
	if err := json.Unmarshal(value, &detail); err != nil {
		c.log.Warn().Str("url", url).Err(err).Msg("Cached entry unreadable, fetching live")
		return nil
	}
	if IsMaskedPhone(detail.Phone()) {
		c.log.Debug().Str("url", url).Msg("Cached phone is masked, fetching live")
		return nil
	}
	return &detail
}

// Put stores the detail under its normalized URL. After three consecutive
// write failures the cache is disabled for the rest of the run and a single
// warning is logged; reads stop too since the backend is gone.
func (c *ListingCache) Put(detail *ListingDetail) {
	if c.svc == nil || c.isDisabled() {
		return
	}
	value, err := json.Marshal(detail)
	if err != nil {
		c.log.Warn().Str("url", detail.SourceURL).Err(err).Msg("Failed to encode listing for cache")
		return
	}
	if err := c.svc.Set(Key(detail.SourceURL), value, 0); err != nil {
		c.recordWriteFailure(err)
		return
	}
	c.resetWriteFailures()
}

func (c *ListingCache) isDisabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disabled
}

func (c *ListingCache) recordWriteFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disabled {
		return
	}
	c.writeFailures++
	if c.writeFailures >= cacheWriteFailureLimit {
		c.disabled = true
		c.log.Warn().
			Int("failures", c.writeFailures).
			Err(err).
			Msg("Cache disabled for this run after repeated write failures")
	}
}

func (c *ListingCache) resetWriteFailures() {
	c.mu.Lock()
	c.writeFailures = 0
	c.mu.Unlock()
}
