package crawler

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"dkovalchuk/catalogcrawler/config"
	"dkovalchuk/catalogcrawler/internal/browser"
	"dkovalchuk/catalogcrawler/logger"
	"dkovalchuk/catalogcrawler/services/publisher"
)

// RecordSink receives accepted listing records
type RecordSink interface {
	// Write appends one record; fields follow the configured column order
	Write(detail map[string]string) error
}

// RunStats aggregates counters across the whole run
type RunStats struct {
	PagesCrawled         atomic.Int64
	PageRetries          atomic.Int64
	ListingsFound        atomic.Int64
	CacheHits            atomic.Int64
	CacheMisses          atomic.Int64
	LiveFetches          atomic.Int64
	FailedListings       atomic.Int64
	FailedCatalogEntries atomic.Int64
	DupesRejected        atomic.Int64
	Accepted             atomic.Int64
	ProxyRotations       atomic.Int64
}

// Orchestrator wires catalogs, detail extraction, deduplication and the
// output sink into one run
type Orchestrator struct {
	cfg     *config.Config
	pool    *browser.Pool
	catalog *Catalog
	detail  *Detail
	deduper *Deduper
	sink    RecordSink
	pub     publisher.Publisher
	stats   *RunStats
	log     *logger.Logger
}

// NewOrchestrator builds the pipeline. pub may be nil when publishing is
// disabled.
func NewOrchestrator(cfg *config.Config, pool *browser.Pool, listingCache *ListingCache, sink RecordSink, pub publisher.Publisher) *Orchestrator {
	stats := &RunStats{}
	return &Orchestrator{
		cfg:     cfg,
		pool:    pool,
		catalog: NewCatalog(cfg, pool, stats),
		detail:  NewDetail(cfg, pool, listingCache, stats),
		deduper: NewDeduper(),
		sink:    sink,
		pub:     pub,
		stats:   stats,
		log:     logger.ForComponent("orchestrator"),
	}
}

// Stats returns the run counters
func (o *Orchestrator) Stats() *RunStats {
	return o.stats
}

// Run crawls every entry URL to completion. Catalog traversal and detail
// extraction run concurrently: each entry gets its own catalog goroutine,
// and maxBrowsers * detailConcurrency workers drain the listing queue. The
// pool's page-slot tokens bound actual browser work, so the worker count
// just keeps the pool saturated.
func (o *Orchestrator) Run(ctx context.Context, entryURLs []string) error {
	refs := make(chan ListingRef, o.cfg.Browser.MaxBrowsers*o.cfg.Browser.DetailConcurrency*2)

	var producers sync.WaitGroup
	for _, entry := range entryURLs {
		producers.Add(1)
		go func(entry string) {
			defer producers.Done()
			err := o.catalog.Crawl(ctx, entry, func(ref ListingRef) {
				select {
				case refs <- ref:
				case <-ctx.Done():
				}
			})
			if err != nil && ctx.Err() == nil {
				o.stats.FailedCatalogEntries.Add(1)
				o.log.Error().Str("entry", entry).Err(err).Msg("Catalog entry failed")
			}
		}(entry)
	}

	go func() {
		producers.Wait()
		close(refs)
	}()

	var workers sync.WaitGroup
	workerCount := o.cfg.Browser.MaxBrowsers * o.cfg.Browser.DetailConcurrency
	for i := 0; i < workerCount; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for ref := range refs {
				if ctx.Err() != nil {
					continue // drain
				}
				o.processListing(ctx, ref)
			}
		}()
	}
	workers.Wait()

	o.logSummary()
	return ctx.Err()
}

// processListing fetches one listing and routes it through dedup to the sink
func (o *Orchestrator) processListing(ctx context.Context, ref ListingRef) {
	detail, err := o.detail.Fetch(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		o.stats.FailedListings.Add(1)
		o.log.Warn().Str("url", ref.URL).Err(err).Msg("Listing failed")
		return
	}

	if !o.deduper.Accept(detail.Phones) {
		o.stats.DupesRejected.Add(1)
		o.log.Debug().Str("url", detail.SourceURL).Msg("Duplicate phone, listing rejected")
		return
	}

	record := make(map[string]string, len(detail.Fields)+1)
	for k, v := range detail.Fields {
		record[k] = v
	}
	record["url"] = detail.SourceURL

	if err := o.sink.Write(record); err != nil {
		o.stats.FailedListings.Add(1)
		o.log.Error().Str("url", detail.SourceURL).Err(err).Msg("Failed to write record")
		return
	}
	o.stats.Accepted.Add(1)
	o.log.Info().
		Str("url", detail.SourceURL).
		Int("phones", len(detail.Phones)).
		Msg("Record accepted")

	o.publish(detail)
}

// publish forwards the accepted record to the stream, if configured.
// Publish failures never fail the crawl.
func (o *Orchestrator) publish(detail *ListingDetail) {
	if o.pub == nil {
		return
	}
	message, err := json.Marshal(detail)
	if err != nil {
		o.log.Warn().Str("url", detail.SourceURL).Err(err).Msg("Failed to encode record for publishing")
		return
	}
	if err := o.pub.Publish(detail.SourceURL, message); err != nil {
		o.log.Warn().Str("url", detail.SourceURL).Err(err).Msg("Failed to publish record")
	}
}

func (o *Orchestrator) logSummary() {
	poolStats := o.pool.Stats()
	o.log.Info().
		Int64("pages_crawled", o.stats.PagesCrawled.Load()).
		Int64("page_retries", o.stats.PageRetries.Load()).
		Int64("listings_found", o.stats.ListingsFound.Load()).
		Int64("cache_hits", o.stats.CacheHits.Load()).
		Int64("cache_misses", o.stats.CacheMisses.Load()).
		Int64("live_fetches", o.stats.LiveFetches.Load()).
		Int64("failed_listings", o.stats.FailedListings.Load()).
		Int64("failed_catalog_entries", o.stats.FailedCatalogEntries.Load()).
		Int64("dupes_rejected", o.stats.DupesRejected.Load()).
		Int64("accepted", o.stats.Accepted.Load()).
		Int64("proxy_rotations", o.stats.ProxyRotations.Load()).
		Int64("sessions_rotated", poolStats.Rotations).
		Msg("Run finished")
}
