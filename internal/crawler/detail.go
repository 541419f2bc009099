package crawler

import (
	"context"
	"strings"
	"time"

	"dkovalchuk/catalogcrawler/config"
	"dkovalchuk/catalogcrawler/helpers"
	"dkovalchuk/catalogcrawler/internal/browser"
	"dkovalchuk/catalogcrawler/logger"
	crawlerr "dkovalchuk/catalogcrawler/pkg/errors"
)

// Detail fetches one listing page and extracts the configured data fields
type Detail struct {
	cfg   *config.Config
	pool  *browser.Pool
	cache *ListingCache
	retry RetryPolicy
	stats *RunStats
	log   *logger.Logger
}

// NewDetail creates a detail extractor
func NewDetail(cfg *config.Config, pool *browser.Pool, listingCache *ListingCache, stats *RunStats) *Detail {
	return &Detail{
		cfg:   cfg,
		pool:  pool,
		cache: listingCache,
		retry: RetryPolicy{
			MaxAttempts: cfg.Parsing.ErrorRetryTimes + 1,
			Delay: DelayRange{
				Min: cfg.Parsing.DelayBetweenRequests.Min,
				Max: cfg.Parsing.DelayBetweenRequests.Max,
			},
		},
		stats: stats,
		log:   logger.ForComponent("detail"),
	}
}

// Fetch returns the listing's detail, from cache when possible, otherwise by
// fetching the page live with retries. Cache reads and writes are both gated
// on listing caching being enabled.
func (d *Detail) Fetch(ctx context.Context, ref ListingRef) (*ListingDetail, error) {
	if d.cfg.Cache.Enabled && d.cfg.Cache.CacheListings {
		if detail := d.cache.Get(ref.URL); detail != nil {
			d.stats.CacheHits.Add(1)
			d.log.Debug().Str("url", ref.URL).Msg("Listing served from cache")
			return detail, nil
		}
		d.stats.CacheMisses.Add(1)
	}

	var detail *ListingDetail
	err := d.retry.Do(ctx, d.log, "listing_detail", func() error {
		var err error
		detail, err = d.fetchLive(ctx, ref)
		return err
	})
	if err != nil {
		return nil, err
	}

	d.stats.LiveFetches.Add(1)
	if d.cfg.Cache.Enabled && d.cfg.Cache.CacheListings {
		d.cache.Put(detail)
	}
	return detail, nil
}

// fetchLive performs one attempt: acquire a page slot, navigate, reveal the
// phone number, snapshot, extract
func (d *Detail) fetchLive(ctx context.Context, ref ListingRef) (*ListingDetail, error) {
	lease, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	page, err := lease.Page(ctx)
	if err != nil {
		return nil, d.failLease(lease, err)
	}

	navCtx, cancel := context.WithTimeout(ctx, time.Duration(d.cfg.Parsing.PageLoadTimeoutMs)*time.Millisecond)
	err = page.Navigate(navCtx, ref.URL)
	cancel()
	if err != nil {
		return nil, d.failLease(lease, err)
	}

	d.revealPhone(ctx, page)

	content, err := page.Content(ctx)
	if err != nil {
		return nil, d.failLease(lease, err)
	}
	doc, err := ParseDocument(content)
	if err != nil {
		return nil, crawlerr.NewParsing("detail", "failed to parse listing HTML", err)
	}

	return d.extract(doc, ref.URL), nil
}

// revealPhone clicks the first matching phone-reveal trigger and gives the
// number a moment to render. Listings without the trigger are common; all
// failures here are silent.
func (d *Detail) revealPhone(ctx context.Context, page browser.Page) {
	for _, sel := range d.cfg.PhoneButtonSelectors {
		clickCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := page.Click(clickCtx, sel)
		cancel()
		if err == nil {
			waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			<-waitCtx.Done()
			cancel()
			return
		}
	}
}

// phonePopupSelectors find the revealed number inside the phone popup when
// the configured phone field still shows the masked placeholder
var phonePopupSelectors = []string{
	"//div[contains(@class,'popup-inner')]//a[starts-with(@href,'tel:')]//span",
	"div.popup-inner a[href^='tel:'] span",
}

// telLinkSelectors fall back to any tel: link on the page
var telLinkSelectors = []string{
	"//a[starts-with(@href,'tel:')]",
	"a[href^='tel:']",
}

// extract pulls every configured data field from the snapshot, first
// matching candidate wins; absent fields yield empty values
func (d *Detail) extract(doc *Document, url string) *ListingDetail {
	fields := make(map[string]string, len(d.cfg.DataFields))
	for _, f := range d.cfg.DataFields {
		fields[f.Name] = doc.FirstText(f.Selectors)
	}

	phoneRaw := fields[PhoneFieldName]
	if phoneRaw == "" || IsMaskedPhone(phoneRaw) {
		if alt := d.phoneFallback(doc); alt != "" {
			phoneRaw = alt
			fields[PhoneFieldName] = alt
		}
	}
	phones := SplitPhones(phoneRaw)
	if IsMaskedPhone(phoneRaw) {
		// Masked placeholders reduce to partial digits that would collide
		// in dedup. Keep the raw field (the cache then treats the entry as
		// a miss next run) but record no phone identity.
		d.log.Debug().Str("url", url).Str("phone", phoneRaw).Msg("Phone still masked after fallbacks")
		phones = nil
	}

	return &ListingDetail{
		SourceURL: helpers.NormalizeURL(url),
		Fields:    fields,
		Phones:    phones,
		FetchedAt: time.Now(),
	}
}

// phoneFallback re-extracts the phone from the reveal popup, then from any
// tel: link. Returns "" when neither yields an unmasked number.
func (d *Detail) phoneFallback(doc *Document) string {
	if alt := doc.FirstText(phonePopupSelectors); alt != "" && !IsMaskedPhone(alt) {
		return alt
	}
	if href := doc.FirstAttr(telLinkSelectors, "href"); href != "" {
		alt := strings.TrimPrefix(href, "tel:")
		if alt != "" && !IsMaskedPhone(alt) {
			return alt
		}
	}
	return ""
}

// failLease reports session-fatal errors to the pool so the session is
// replaced before the next attempt; the retry loop re-acquires.
func (d *Detail) failLease(lease *browser.Lease, err error) error {
	if crawlerr.IsSessionFatal(err) {
		lease.Fail(err)
		d.stats.ProxyRotations.Add(1)
	}
	return err
}
