package browser

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"dkovalchuk/catalogcrawler/internal/proxy"
	"dkovalchuk/catalogcrawler/logger"
	crawlerr "dkovalchuk/catalogcrawler/pkg/errors"
)

// PoolConfig sizes the session pool
type PoolConfig struct {
	// MaxBrowsers is the number of concurrent browser sessions
	MaxBrowsers int
	// DetailConcurrency is the number of concurrent pages per session
	DetailConcurrency int
	// AcquireTimeout bounds waiting for a free page slot
	AcquireTimeout time.Duration
}

// slot holds one browser session. The generation counter guards against
// double teardown when several leases of the same dead session report
// failure concurrently.
type slot struct {
	mu         sync.Mutex
	session    Session
	generation uint64
	proxyLabel string
}

// Pool maintains MaxBrowsers sessions, each admitting at most
// DetailConcurrency concurrent pages. Total page concurrency never exceeds
// MaxBrowsers * DetailConcurrency. Page tokens live on one shared channel
// (each slot contributes exactly DetailConcurrency of them), so a token
// freed on any slot wakes any waiter.
type Pool struct {
	cfg     PoolConfig
	factory Factory
	rotator *proxy.Rotator
	slots   []*slot
	tokens  chan *slot

	liveSessions atomic.Int64
	openPages    atomic.Int64
	rotations    atomic.Int64

	log *logger.Logger
}

// PoolStats is a point-in-time snapshot of pool occupancy
type PoolStats struct {
	LiveSessions int64
	OpenPages    int64
	Rotations    int64
}

// Lease is one acquired page slot. Exactly one of Release or Fail must be
// called when the holder is done.
type Lease struct {
	pool       *Pool
	slot       *slot
	generation uint64
	page       Page
	released   bool
}

// NewPool creates a session pool. Sessions start lazily on first acquire so
// a run against a warm cache never launches a browser.
func NewPool(cfg PoolConfig, factory Factory, rotator *proxy.Rotator) *Pool {
	slots := make([]*slot, cfg.MaxBrowsers)
	tokens := make(chan *slot, cfg.MaxBrowsers*cfg.DetailConcurrency)
	for i := range slots {
		slots[i] = &slot{}
		for j := 0; j < cfg.DetailConcurrency; j++ {
			tokens <- slots[i]
		}
	}
	return &Pool{
		cfg:     cfg,
		factory: factory,
		rotator: rotator,
		slots:   slots,
		tokens:  tokens,
		log:     logger.ForComponent("pool"),
	}
}

// Acquire reserves a page slot, starting the slot's session if needed.
// It returns a capacity error when no token frees up within AcquireTimeout.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case s := <-p.tokens:
		return p.lease(ctx, s)
	case <-timer.C:
		return nil, crawlerr.NewCapacity("pool", "no page slot available within acquire timeout")
	case <-ctx.Done():
		return nil, crawlerr.NewCapacity("pool", "canceled while waiting for a page slot")
	}
}

// lease ensures the slot has a live session and wraps the token in a Lease
func (p *Pool) lease(ctx context.Context, s *slot) (*Lease, error) {
	s.mu.Lock()
	if s.session == nil {
		if err := p.startSessionLocked(ctx, s); err != nil {
			s.mu.Unlock()
			p.tokens <- s
			return nil, err
		}
	}
	gen := s.generation
	s.mu.Unlock()

	return &Lease{pool: p, slot: s, generation: gen}, nil
}

// startSessionLocked opens a session for the slot using the rotator's
// current proxy. Caller holds s.mu.
func (p *Pool) startSessionLocked(ctx context.Context, s *slot) error {
	var pr *proxy.Proxy
	if p.rotator != nil {
		chosen, ok := p.rotator.Next()
		if !ok {
			stats := p.rotator.Stats()
			if stats.Total > 0 {
				return crawlerr.NewConfiguration("all proxies are dead", nil)
			}
		} else {
			pr = chosen
		}
	}

	session, err := p.factory.NewSession(ctx, pr)
	if err != nil {
		if pr != nil && crawlerr.IsSessionFatal(err) {
			p.rotator.ReportFailure(pr.Label)
			p.rotations.Add(1)
		}
		return err
	}

	s.session = session
	s.generation++
	if pr != nil {
		s.proxyLabel = pr.Label
	} else {
		s.proxyLabel = ""
	}
	p.liveSessions.Add(1)
	p.log.Debug().Str("proxy", s.proxyLabel).Msg("Session started")
	return nil
}

// Page returns the lease's page, opening it on first use
func (l *Lease) Page(ctx context.Context) (Page, error) {
	if l.page != nil {
		return l.page, nil
	}
	l.slot.mu.Lock()
	session := l.slot.session
	stale := l.generation != l.slot.generation
	l.slot.mu.Unlock()

	if stale || session == nil {
		return nil, crawlerr.NewSessionFatal("pool", "session was torn down under this lease", nil)
	}
	page, err := session.OpenPage(ctx)
	if err != nil {
		return nil, err
	}
	l.page = page
	l.pool.openPages.Add(1)
	return page, nil
}

// Release returns the page slot to the pool
func (l *Lease) Release() {
	if l.released {
		return
	}
	l.released = true
	l.closePage()
	l.pool.tokens <- l.slot
}

// Fail reports that the lease's session died (typically a proxy denial).
// The session is torn down, the failure is charged to its proxy, and the
// slot restarts with the rotator's next proxy on the following acquire.
func (l *Lease) Fail(cause error) {
	if l.released {
		return
	}
	l.released = true
	l.closePage()

	s := l.slot
	s.mu.Lock()
	if l.generation == s.generation && s.session != nil {
		s.session.Close()
		s.session = nil
		s.generation++
		l.pool.liveSessions.Add(-1)
		if l.pool.rotator != nil && s.proxyLabel != "" {
			l.pool.rotator.ReportFailure(s.proxyLabel)
			l.pool.rotations.Add(1)
		}
		l.pool.log.Warn().
			Str("proxy", s.proxyLabel).
			Err(cause).
			Msg("Session torn down")
	}
	s.mu.Unlock()

	l.pool.tokens <- s
}

func (l *Lease) closePage() {
	if l.page != nil {
		l.page.Close()
		l.page = nil
		l.pool.openPages.Add(-1)
	}
}

// Stats returns current pool occupancy counters
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		LiveSessions: p.liveSessions.Load(),
		OpenPages:    p.openPages.Load(),
		Rotations:    p.rotations.Load(),
	}
}

// Close tears down every live session
func (p *Pool) Close() {
	for _, s := range p.slots {
		s.mu.Lock()
		if s.session != nil {
			s.session.Close()
			s.session = nil
			s.generation++
			p.liveSessions.Add(-1)
		}
		s.mu.Unlock()
	}
	p.log.Debug().Msg("Pool closed")
}
