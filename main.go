package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"dkovalchuk/catalogcrawler/config"
	"dkovalchuk/catalogcrawler/internal/browser"
	"dkovalchuk/catalogcrawler/internal/crawler"
	"dkovalchuk/catalogcrawler/internal/metrics"
	"dkovalchuk/catalogcrawler/internal/output"
	"dkovalchuk/catalogcrawler/internal/proxy"
	"dkovalchuk/catalogcrawler/logger"
	"dkovalchuk/catalogcrawler/services/cache"
	"dkovalchuk/catalogcrawler/services/publisher"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON configuration file")
	inputPath := flag.String("input", "input.txt", "path to the entry URL list, one per line")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logDir := flag.String("log-dir", "logs", "directory for per-run log files; empty disables")
	dryRun := flag.Bool("dry-run", false, "validate configuration and input, then exit")
	clearCache := flag.Bool("clear-cache", false, "drop all cached listings before crawling")
	flag.Parse()

	// Load environment variables
	godotenv.Load()

	runID := uuid.NewString()[:8]
	if _, err := logger.Init(logger.Options{Level: *logLevel, Dir: *logDir, RunID: runID}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	log := logger.Default

	// Load and validate configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	entryURLs, err := config.ReadInputURLs(*inputPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read input URLs")
	}

	log.Info().
		Int("entry_urls", len(entryURLs)).
		Int("max_browsers", cfg.Browser.MaxBrowsers).
		Int("detail_concurrency", cfg.Browser.DetailConcurrency).
		Bool("cache_enabled", cfg.Cache.Enabled).
		Bool("proxy_enabled", cfg.Proxy.Enabled).
		Msg("Starting crawl")

	if *dryRun {
		log.Info().Msg("Dry run: configuration and input are valid")
		return
	}

	// Set up signal handling
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cacheSvc := openCache(cfg, *clearCache)
	if cacheSvc != nil {
		defer cacheSvc.Close()
	}
	listingCache := crawler.NewListingCache(cacheSvc)

	var rotator *proxy.Rotator
	if cfg.Proxy.Enabled {
		rotator, err = proxy.NewRotator(cfg.Proxy.List, cfg.Proxy.Rotation, cfg.Proxy.MaxFailures)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid proxy configuration")
		}
	}

	pool := browser.NewPool(browser.PoolConfig{
		MaxBrowsers:       cfg.Browser.MaxBrowsers,
		DetailConcurrency: cfg.Browser.DetailConcurrency,
		AcquireTimeout:    time.Duration(cfg.Browser.AcquireTimeoutMs) * time.Millisecond,
	}, browser.NewChromeFactory(cfg.Browser.Headless), rotator)
	defer pool.Close()

	fields := make([]string, 0, len(cfg.DataFields))
	for _, f := range cfg.DataFields {
		fields = append(fields, f.Name)
	}
	writer, err := output.NewCSVWriter(cfg.Output.File, fields, cfg.Output.Delimiter, cfg.Output.Encoding)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create output file")
	}
	defer writer.Close()

	var pub publisher.Publisher
	if cfg.Publish.Enabled {
		redisPub := publisher.NewRedisPublisher(ctx, cfg.Publish.Addr, cfg.Publish.DB, cfg.Publish.Stream, cfg.Publish.MaxLength)
		defer redisPub.Close()
		pub = redisPub
	}

	orchestrator := crawler.NewOrchestrator(cfg, pool, listingCache, writer, pub)

	if cfg.Metrics.Addr != "" {
		m := metrics.New(func() metrics.Snapshot { return snapshot(orchestrator, pool) })
		go m.Serve(ctx, cfg.Metrics.Addr)
	}

	if err := orchestrator.Run(ctx, entryURLs); err != nil {
		log.Warn().Err(err).Msg("Crawl interrupted")
	}

	log.Info().Str("output", writer.Path()).Msg("Done")
}

// openCache selects the configured cache backend. Backend failures disable
// caching for the run instead of aborting it.
func openCache(cfg *config.Config, clear bool) cache.CacheService {
	log := logger.Default
	if !cfg.Cache.Enabled {
		return nil
	}

	var svc cache.CacheService
	switch cfg.Cache.Backend {
	case "memcache":
		svc = cache.NewMemcacheService(cfg.Cache.MemcacheAddr)
	default:
		badgerSvc, err := cache.NewBadgerService(cfg.Cache.Directory)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to open cache, continuing without it")
			return nil
		}
		svc = badgerSvc
	}

	if clear {
		if err := svc.Clear(); err != nil {
			log.Warn().Err(err).Msg("Failed to clear cache")
		} else {
			log.Info().Msg("Cache cleared")
		}
	}
	return svc
}

func snapshot(o *crawler.Orchestrator, pool *browser.Pool) metrics.Snapshot {
	stats := o.Stats()
	poolStats := pool.Stats()
	return metrics.Snapshot{
		PagesCrawled:   stats.PagesCrawled.Load(),
		PageRetries:    stats.PageRetries.Load(),
		ListingsFound:  stats.ListingsFound.Load(),
		CacheHits:      stats.CacheHits.Load(),
		CacheMisses:    stats.CacheMisses.Load(),
		LiveFetches:    stats.LiveFetches.Load(),
		FailedListings: stats.FailedListings.Load(),
		DupesRejected:  stats.DupesRejected.Load(),
		Accepted:       stats.Accepted.Load(),
		ProxyRotations: stats.ProxyRotations.Load(),
		LiveSessions:   poolStats.LiveSessions,
		OpenPages:      poolStats.OpenPages,
	}
}
