package proxy

import (
	"fmt"
	"strings"
	"sync"

	"dkovalchuk/catalogcrawler/logger"
)

// Proxy holds one upstream proxy endpoint
type Proxy struct {
	// Server is the scheme://host:port address handed to the browser
	Server   string
	Username string
	Password string
	// Label identifies the proxy in logs and failure reports
	Label string
}

// HasAuth reports whether the proxy requires credentials
func (p *Proxy) HasAuth() bool {
	return p.Username != ""
}

// Rotator hands out proxies round-robin and retires those that keep failing
type Rotator struct {
	mu          sync.Mutex
	proxies     []*Proxy
	failures    map[string]int
	dead        map[string]bool
	cursor      int
	rotation    bool
	maxFailures int
	rotations   int
	log         *logger.Logger
}

// Stats is a point-in-time snapshot of rotator state
type Stats struct {
	Total     int
	Dead      int
	Rotations int
}

// NewRotator parses the configured proxy entries and builds a rotator.
// With rotation disabled the first proxy is used for every session until
// it is marked dead.
func NewRotator(entries []string, rotation bool, maxFailures int) (*Rotator, error) {
	proxies := make([]*Proxy, 0, len(entries))
	for _, entry := range entries {
		p, err := parseProxyEntry(entry)
		if err != nil {
			return nil, err
		}
		proxies = append(proxies, p)
	}
	return &Rotator{
		proxies:     proxies,
		failures:    make(map[string]int),
		dead:        make(map[string]bool),
		rotation:    rotation,
		maxFailures: maxFailures,
		log:         logger.ForComponent("proxy"),
	}, nil
}

// Next returns the proxy a new session should use. The second return is
// false when no live proxy remains (or none were configured).
func (r *Rotator) Next() (*Proxy, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.proxies) == 0 {
		return nil, false
	}
	for i := 0; i < len(r.proxies); i++ {
		p := r.proxies[r.cursor%len(r.proxies)]
		if !r.dead[p.Label] {
			return p, true
		}
		r.cursor++
	}
	return nil, false
}

// ReportFailure records a failure against the labeled proxy, advances the
// cursor when rotation is enabled, and retires the proxy once it reaches
// the failure ceiling.
func (r *Rotator) ReportFailure(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if label == "" {
		return
	}
	r.failures[label]++
	if r.rotation {
		r.cursor++
		r.rotations++
	}
	if !r.dead[label] && r.failures[label] >= r.maxFailures {
		r.dead[label] = true
		r.log.Warn().
			Str("proxy", label).
			Int("failures", r.failures[label]).
			Msg("Proxy marked dead")
	}
}

// Stats returns the current rotator counters
func (r *Rotator) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	dead := 0
	for _, isDead := range r.dead {
		if isDead {
			dead++
		}
	}
	return Stats{Total: len(r.proxies), Dead: dead, Rotations: r.rotations}
}

// parseProxyEntry accepts the shorthand forms
//
//	host:port:user:pass
//	host:port:user
//	scheme://host:port
//	host:port
//
// defaulting the scheme to http when none is given.
func parseProxyEntry(entry string) (*Proxy, error) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return nil, fmt.Errorf("empty proxy entry")
	}

	if strings.Contains(entry, "://") {
		return &Proxy{Server: entry, Label: entry}, nil
	}

	parts := strings.Split(entry, ":")
	switch len(parts) {
	case 2:
		server := "http://" + entry
		return &Proxy{Server: server, Label: server}, nil
	case 3:
		server := "http://" + parts[0] + ":" + parts[1]
		return &Proxy{Server: server, Username: parts[2], Label: server}, nil
	case 4:
		server := "http://" + parts[0] + ":" + parts[1]
		return &Proxy{Server: server, Username: parts[2], Password: parts[3], Label: server}, nil
	default:
		return nil, fmt.Errorf("unrecognized proxy entry %q", entry)
	}
}
