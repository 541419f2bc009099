package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dkovalchuk/catalogcrawler/logger"
)

// Snapshot supplies current run counters to the collectors
type Snapshot struct {
	PagesCrawled   int64
	PageRetries    int64
	ListingsFound  int64
	CacheHits      int64
	CacheMisses    int64
	LiveFetches    int64
	FailedListings int64
	DupesRejected  int64
	Accepted       int64
	ProxyRotations int64
	LiveSessions   int64
	OpenPages      int64
}

// Metrics exposes run counters and pool occupancy on a private registry.
// Collectors read the orchestrator's counters directly, so there is no
// second set of counters to keep in sync.
type Metrics struct {
	registry *prometheus.Registry
	log      *logger.Logger
}

// New builds the registry around the snapshot function
func New(snapshot func() Snapshot) *Metrics {
	registry := prometheus.NewRegistry()

	counter := func(name, help string, value func(Snapshot) int64) {
		registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "catalogcrawler",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value(snapshot())) }))
	}
	gauge := func(name, help string, value func(Snapshot) int64) {
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "catalogcrawler",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value(snapshot())) }))
	}

	counter("pages_crawled_total", "Catalog pages crawled", func(s Snapshot) int64 { return s.PagesCrawled })
	counter("page_retries_total", "Page attempts that were retried", func(s Snapshot) int64 { return s.PageRetries })
	counter("listings_found_total", "Listing links discovered", func(s Snapshot) int64 { return s.ListingsFound })
	counter("cache_hits_total", "Listings served from cache", func(s Snapshot) int64 { return s.CacheHits })
	counter("cache_misses_total", "Listings missing from cache", func(s Snapshot) int64 { return s.CacheMisses })
	counter("live_fetches_total", "Listings fetched live", func(s Snapshot) int64 { return s.LiveFetches })
	counter("failed_listings_total", "Listings that failed all attempts", func(s Snapshot) int64 { return s.FailedListings })
	counter("dupes_rejected_total", "Listings rejected for duplicate phones", func(s Snapshot) int64 { return s.DupesRejected })
	counter("accepted_total", "Records written to the output", func(s Snapshot) int64 { return s.Accepted })
	counter("proxy_rotations_total", "Browser sessions replaced after proxy failures", func(s Snapshot) int64 { return s.ProxyRotations })
	gauge("live_sessions", "Browser sessions currently running", func(s Snapshot) int64 { return s.LiveSessions })
	gauge("open_pages", "Pages currently open across all sessions", func(s Snapshot) int64 { return s.OpenPages })

	return &Metrics{
		registry: registry,
		log:      logger.ForComponent("metrics"),
	}
}

// Serve exposes /metrics on addr until ctx is canceled. Errors are logged,
// never fatal: metrics are best-effort.
func (m *Metrics) Serve(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	m.log.Info().Str("addr", addr).Msg("Metrics endpoint listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		m.log.Warn().Err(err).Msg("Metrics endpoint stopped")
	}
}
