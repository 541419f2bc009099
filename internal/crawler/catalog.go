package crawler

import (
	"context"
	"time"

	"dkovalchuk/catalogcrawler/config"
	"dkovalchuk/catalogcrawler/helpers"
	"dkovalchuk/catalogcrawler/internal/browser"
	"dkovalchuk/catalogcrawler/logger"
	crawlerr "dkovalchuk/catalogcrawler/pkg/errors"
)

// Catalog walks the paginated pages of one entry URL and emits the listing
// links it finds. Pagination advances by incrementing the "page" query
// parameter; traversal stops when the site stops cooperating.
type Catalog struct {
	cfg   *config.Config
	pool  *browser.Pool
	retry RetryPolicy
	stats *RunStats
	log   *logger.Logger
}

// NewCatalog creates a catalog crawler sharing the orchestrator's pool and stats
func NewCatalog(cfg *config.Config, pool *browser.Pool, stats *RunStats) *Catalog {
	return &Catalog{
		cfg:  cfg,
		pool: pool,
		retry: RetryPolicy{
			MaxAttempts: cfg.Parsing.ErrorRetryTimes + 1,
			Delay: DelayRange{
				Min: cfg.Parsing.DelayBetweenRequests.Min,
				Max: cfg.Parsing.DelayBetweenRequests.Max,
			},
		},
		stats: stats,
		log:   logger.ForComponent("catalog"),
	}
}

// Crawl traverses all pages reachable from entryURL and calls emit for each
// listing link, de-duplicated within this entry. Traversal stops when:
//   - the configured maxPages ceiling is reached,
//   - the pagination control is absent from the page,
//   - navigation lands on an already-visited page URL,
//   - a page yields no listings,
//   - or a page fails all retry attempts.
//
// Only the last case is an error; the others are normal end of catalog.
func (c *Catalog) Crawl(ctx context.Context, entryURL string, emit func(ListingRef)) error {
	seenPages := make(map[string]bool)
	seenListings := make(map[string]bool)
	pageURL := entryURL
	pageNum := helpers.PageParam(entryURL)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.cfg.Parsing.MaxPages > 0 && pageNum > c.cfg.Parsing.MaxPages {
			c.log.Info().Str("entry", entryURL).Int("page", pageNum).Msg("Page ceiling reached")
			return nil
		}
		canonical := helpers.StripFragment(helpers.NormalizeURL(pageURL))
		if seenPages[canonical] {
			c.log.Info().Str("entry", entryURL).Str("page_url", pageURL).Msg("Page already visited, stopping")
			return nil
		}
		seenPages[canonical] = true

		doc, landedURL, err := c.loadPage(ctx, pageURL)
		if err != nil {
			return err
		}
		c.stats.PagesCrawled.Add(1)

		links := doc.Links(c.cfg.CatalogSelectors, landedURL)
		if len(links) == 0 {
			c.log.Info().Str("entry", entryURL).Int("page", pageNum).Msg("No listings on page, stopping")
			return nil
		}

		emitted := 0
		for _, link := range links {
			key := helpers.NormalizeURL(link)
			if seenListings[key] {
				continue
			}
			seenListings[key] = true
			emit(ListingRef{URL: link, SourcePage: pageNum})
			emitted++
		}
		c.stats.ListingsFound.Add(int64(emitted))
		c.log.Info().
			Str("entry", entryURL).
			Int("page", pageNum).
			Int("listings", emitted).
			Msg("Catalog page crawled")
		if c.cfg.Parsing.ListingsPerPage > 0 && len(links) < c.cfg.Parsing.ListingsPerPage {
			c.log.Debug().
				Str("entry", entryURL).
				Int("page", pageNum).
				Int("expected", c.cfg.Parsing.ListingsPerPage).
				Msg("Short page, catalog likely ends here")
		}

		if !doc.HasAny(c.cfg.PaginationSelectors) {
			c.log.Info().Str("entry", entryURL).Int("page", pageNum).Msg("Pagination control absent, stopping")
			return nil
		}

		// Sites past their last page often redirect back; detect via the
		// landed URL rather than the requested one.
		landedCanonical := helpers.StripFragment(helpers.NormalizeURL(landedURL))
		if landedCanonical != canonical && seenPages[landedCanonical] {
			c.log.Info().Str("entry", entryURL).Str("landed", landedURL).Msg("Redirected to a visited page, stopping")
			return nil
		}
		seenPages[landedCanonical] = true

		pageNum++
		pageURL = helpers.WithPageParam(entryURL, pageNum)
		c.retry.Delay.Sleep(ctx)
	}
}

// loadPage navigates to pageURL with retries, waits for the pagination
// control, and returns the parsed snapshot plus the URL actually landed on.
// Each attempt acquires its own page slot and releases it before the
// inter-page delay, so catalog traversal never pins a slot while idle.
// Session-fatal failures tear down the slot's session; the next attempt
// acquires a fresh one (and with it the rotator's next proxy).
func (c *Catalog) loadPage(ctx context.Context, pageURL string) (*Document, string, error) {
	var doc *Document
	var landedURL string

	err := c.retry.Do(ctx, c.log, "catalog_page", func() error {
		lease, err := c.pool.Acquire(ctx)
		if err != nil {
			c.stats.PageRetries.Add(1)
			return err
		}
		defer lease.Release()

		page, err := lease.Page(ctx)
		if err != nil {
			return c.failLease(lease, err)
		}

		navCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.Parsing.PageLoadTimeoutMs)*time.Millisecond)
		err = page.Navigate(navCtx, pageURL)
		cancel()
		if err != nil {
			c.stats.PageRetries.Add(1)
			return c.failLease(lease, err)
		}

		// The pagination control renders late on script-heavy pages; give
		// it a bounded wait but carry on without it.
		waitCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.Parsing.WaitForPaginationTimeoutMs)*time.Millisecond)
		if err := page.WaitVisible(waitCtx, c.cfg.PaginationSelectors[0]); err != nil {
			c.log.Debug().Str("page_url", pageURL).Msg("Pagination control did not become visible")
		}
		cancel()

		content, err := page.Content(ctx)
		if err != nil {
			c.stats.PageRetries.Add(1)
			return c.failLease(lease, err)
		}
		landedURL, err = page.Location(ctx)
		if err != nil || landedURL == "" {
			landedURL = pageURL
		}

		doc, err = ParseDocument(content)
		if err != nil {
			return crawlerr.NewParsing("catalog", "failed to parse page HTML", err)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return doc, landedURL, nil
}

// failLease reports session-fatal errors to the pool so the session is
// replaced before the next attempt; the retry loop re-acquires.
func (c *Catalog) failLease(lease *browser.Lease, err error) error {
	if crawlerr.IsSessionFatal(err) {
		lease.Fail(err)
		c.stats.ProxyRotations.Add(1)
	}
	return err
}
