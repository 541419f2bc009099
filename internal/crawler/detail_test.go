package crawler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crawlerr "dkovalchuk/catalogcrawler/pkg/errors"
)

func detailHTML(title, price, phone string) string {
	return `<html><body>
		<h1 class="head">` + title + `</h1>
		<div class="price_value">` + price + `</div>
		<span class="phone">` + phone + `</span>
	</body></html>`
}

func TestDetailFetchExtractsFields(t *testing.T) {
	site := newFakeSite()
	url := "https://example.com/item/1"
	site.addPage(url, detailHTML("BMW 520d 2019", "21 500 $", "(067) 123-45-67, (050) 765 43 21"))

	cfg := testConfig()
	pool, _ := testPool(cfg, site, nil)
	defer pool.Close()

	detail := NewDetail(cfg, pool, NewListingCache(nil), &RunStats{})
	got, err := detail.Fetch(context.Background(), ListingRef{URL: url, SourcePage: 1})
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/item/1", got.SourceURL)
	assert.Equal(t, "BMW 520d 2019", got.Fields["title"])
	assert.Equal(t, "21 500 $", got.Fields["price"])
	assert.Equal(t, []string{"0671234567", "0507654321"}, got.Phones)
	assert.False(t, got.FetchedAt.IsZero())
}

func TestDetailFetchMissingFieldsAreEmpty(t *testing.T) {
	site := newFakeSite()
	url := "https://example.com/item/1"
	site.addPage(url, `<html><body><h1 class="head">No price here</h1></body></html>`)

	cfg := testConfig()
	pool, _ := testPool(cfg, site, nil)
	defer pool.Close()

	detail := NewDetail(cfg, pool, NewListingCache(nil), &RunStats{})
	got, err := detail.Fetch(context.Background(), ListingRef{URL: url})
	require.NoError(t, err)

	assert.Equal(t, "No price here", got.Fields["title"])
	assert.Equal(t, "", got.Fields["price"])
	assert.Equal(t, "", got.Fields[PhoneFieldName])
	assert.Empty(t, got.Phones)
}

func TestDetailFetchServedFromCache(t *testing.T) {
	site := newFakeSite()
	url := "https://example.com/item/1"
	site.addPage(url, detailHTML("BMW 520d 2019", "21 500 $", "(067) 123-45-67"))

	cfg := testConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.CacheListings = true
	pool, _ := testPool(cfg, site, nil)
	defer pool.Close()

	stats := &RunStats{}
	listingCache := NewListingCache(newMemoryCache())
	detail := NewDetail(cfg, pool, listingCache, stats)

	_, err := detail.Fetch(context.Background(), ListingRef{URL: url})
	require.NoError(t, err)
	assert.Equal(t, 1, site.navigations(url))

	// Second fetch hits the cache; the site sees no traffic.
	got, err := detail.Fetch(context.Background(), ListingRef{URL: url})
	require.NoError(t, err)
	assert.Equal(t, "BMW 520d 2019", got.Fields["title"])
	assert.Equal(t, 1, site.navigations(url))
	assert.Equal(t, int64(1), stats.CacheHits.Load())
	assert.Equal(t, int64(1), stats.CacheMisses.Load())
	assert.Equal(t, int64(1), stats.LiveFetches.Load())
}

func TestDetailFetchMaskedCachedPhoneRefetches(t *testing.T) {
	site := newFakeSite()
	url := "https://example.com/item/1"
	site.addPage(url, detailHTML("BMW 520d 2019", "21 500 $", "(067) 123-45-67"))

	cfg := testConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.CacheListings = true
	pool, _ := testPool(cfg, site, nil)
	defer pool.Close()

	listingCache := NewListingCache(newMemoryCache())
	listingCache.Put(sampleDetail(url, "(067) XXX-XX-67"))

	detail := NewDetail(cfg, pool, listingCache, &RunStats{})
	got, err := detail.Fetch(context.Background(), ListingRef{URL: url})
	require.NoError(t, err)

	assert.Equal(t, 1, site.navigations(url))
	assert.Equal(t, []string{"0671234567"}, got.Phones)

	// The refetched detail replaced the masked entry.
	cached := listingCache.Get(url)
	require.NotNil(t, cached)
	assert.Equal(t, "(067) 123-45-67", cached.Phone())
}

func TestDetailFetchMaskedPhoneUsesPopupFallback(t *testing.T) {
	site := newFakeSite()
	url := "https://example.com/item/1"
	site.addPage(url, `<html><body>
		<h1 class="head">BMW 520d 2019</h1>
		<span class="phone">(067) XXX-XX-67</span>
		<div class="popup-inner"><a href="tel:0671234567"><span>(067) 123-45-67</span></a></div>
	</body></html>`)

	cfg := testConfig()
	pool, _ := testPool(cfg, site, nil)
	defer pool.Close()

	detail := NewDetail(cfg, pool, NewListingCache(nil), &RunStats{})
	got, err := detail.Fetch(context.Background(), ListingRef{URL: url})
	require.NoError(t, err)

	assert.Equal(t, "(067) 123-45-67", got.Fields[PhoneFieldName])
	assert.Equal(t, []string{"0671234567"}, got.Phones)
}

func TestDetailFetchMaskedPhoneUsesTelLinkFallback(t *testing.T) {
	site := newFakeSite()
	url := "https://example.com/item/1"
	site.addPage(url, `<html><body>
		<span class="phone">(067) XXX-XX-67</span>
		<a href="tel:+380671234567">call the seller</a>
	</body></html>`)

	cfg := testConfig()
	pool, _ := testPool(cfg, site, nil)
	defer pool.Close()

	detail := NewDetail(cfg, pool, NewListingCache(nil), &RunStats{})
	got, err := detail.Fetch(context.Background(), ListingRef{URL: url})
	require.NoError(t, err)

	assert.Equal(t, "+380671234567", got.Fields[PhoneFieldName])
	assert.Equal(t, []string{"380671234567"}, got.Phones)
}

func TestDetailFetchMaskedPhoneWithoutFallbackYieldsNoPhones(t *testing.T) {
	site := newFakeSite()
	url := "https://example.com/item/1"
	site.addPage(url, detailHTML("BMW 520d 2019", "21 500 $", "(067) XXX-XX-67"))

	cfg := testConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.CacheListings = true
	pool, _ := testPool(cfg, site, nil)
	defer pool.Close()

	listingCache := NewListingCache(newMemoryCache())
	detail := NewDetail(cfg, pool, listingCache, &RunStats{})
	got, err := detail.Fetch(context.Background(), ListingRef{URL: url})
	require.NoError(t, err)

	// The masked digits must not become a dedup identity, and the cached
	// entry stays invalid so the next run fetches live again.
	assert.Empty(t, got.Phones)
	assert.Equal(t, "(067) XXX-XX-67", got.Fields[PhoneFieldName])
	assert.Nil(t, listingCache.Get(url))
}

func TestDetailFetchIgnoresCacheWhenListingCachingOff(t *testing.T) {
	site := newFakeSite()
	url := "https://example.com/item/1"
	site.addPage(url, detailHTML("BMW 520d 2019", "21 500 $", "(067) 123-45-67"))

	cfg := testConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.CacheListings = false
	pool, _ := testPool(cfg, site, nil)
	defer pool.Close()

	stats := &RunStats{}
	listingCache := NewListingCache(newMemoryCache())
	listingCache.Put(sampleDetail(url, "(050) 999-88-77"))

	detail := NewDetail(cfg, pool, listingCache, stats)
	got, err := detail.Fetch(context.Background(), ListingRef{URL: url})
	require.NoError(t, err)

	// The warm entry is ignored: the listing is fetched live.
	assert.Equal(t, 1, site.navigations(url))
	assert.Equal(t, "(067) 123-45-67", got.Fields[PhoneFieldName])
	assert.Equal(t, int64(0), stats.CacheHits.Load())
}

func TestDetailFetchRetriesThenFails(t *testing.T) {
	site := newFakeSite()
	url := "https://example.com/item/1"
	site.addPage(url, detailHTML("t", "p", "067"))
	for i := 0; i < 3; i++ {
		site.failOnce(url, crawlerr.NewNetwork("page", "connection reset", nil))
	}

	cfg := testConfig() // errorRetryTimes=2 -> 3 attempts
	pool, _ := testPool(cfg, site, nil)
	defer pool.Close()

	detail := NewDetail(cfg, pool, NewListingCache(nil), &RunStats{})
	_, err := detail.Fetch(context.Background(), ListingRef{URL: url})
	assert.Error(t, err)
	assert.Equal(t, 3, site.navigations(url))
}

func TestDetailFetchSessionFatalRotates(t *testing.T) {
	site := newFakeSite()
	url := "https://example.com/item/1"
	site.addPage(url, detailHTML("t", "p", "067"))
	site.failOnce(url, crawlerr.NewSessionFatal("page", "proxy denied connection", nil))

	cfg := testConfig()
	pool, factory := testPool(cfg, site, nil)
	defer pool.Close()

	stats := &RunStats{}
	detail := NewDetail(cfg, pool, NewListingCache(nil), stats)
	got, err := detail.Fetch(context.Background(), ListingRef{URL: url})
	require.NoError(t, err)
	assert.Equal(t, "t", got.Fields["title"])

	// The dead session was replaced for the second attempt.
	assert.Len(t, factory.sessionLabels(), 2)
	assert.Equal(t, int64(1), stats.ProxyRotations.Load())
}
