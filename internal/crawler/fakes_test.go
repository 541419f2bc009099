package crawler

import (
	"context"
	"fmt"
	"sync"

	"dkovalchuk/catalogcrawler/internal/browser"
	"dkovalchuk/catalogcrawler/internal/proxy"
	crawlerr "dkovalchuk/catalogcrawler/pkg/errors"
)

// fakeSite serves canned HTML per URL to fake browser sessions
type fakeSite struct {
	mu sync.Mutex
	// pages maps URL to the HTML served there
	pages map[string]string
	// redirects maps a requested URL to the URL actually landed on
	redirects map[string]string
	// failures holds errors returned by Navigate, consumed in order
	failures map[string][]error
	// navCount counts navigations per URL
	navCount map[string]int
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		pages:     make(map[string]string),
		redirects: make(map[string]string),
		failures:  make(map[string][]error),
		navCount:  make(map[string]int),
	}
}

func (s *fakeSite) addPage(url, html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[url] = html
}

func (s *fakeSite) failOnce(url string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[url] = append(s.failures[url], err)
}

func (s *fakeSite) navigations(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navCount[url]
}

func (s *fakeSite) serve(url string) (html, landed string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.navCount[url]++
	if pending := s.failures[url]; len(pending) > 0 {
		err = pending[0]
		s.failures[url] = pending[1:]
		return "", "", err
	}
	landed = url
	if to, ok := s.redirects[url]; ok {
		landed = to
	}
	html, ok := s.pages[landed]
	if !ok {
		return "", "", crawlerr.NewNetwork("page", fmt.Sprintf("no page at %s", landed), nil)
	}
	return html, landed, nil
}

type sitePage struct {
	site    *fakeSite
	content string
	landed  string
}

func (p *sitePage) Navigate(ctx context.Context, url string) error {
	content, landed, err := p.site.serve(url)
	if err != nil {
		return err
	}
	p.content = content
	p.landed = landed
	return nil
}

func (p *sitePage) Click(ctx context.Context, selector string) error {
	return crawlerr.NewNetwork("page", "no such trigger", nil)
}

func (p *sitePage) WaitVisible(ctx context.Context, selector string) error { return nil }

func (p *sitePage) Content(ctx context.Context) (string, error) { return p.content, nil }

func (p *sitePage) Location(ctx context.Context) (string, error) { return p.landed, nil }

func (p *sitePage) Close() error { return nil }

type siteSession struct {
	site  *fakeSite
	label string
}

func (s *siteSession) OpenPage(ctx context.Context) (browser.Page, error) {
	return &sitePage{site: s.site}, nil
}

func (s *siteSession) Close() error { return nil }

type siteFactory struct {
	site *fakeSite

	mu     sync.Mutex
	labels []string
	// failSessions holds remaining session-start failures per proxy label
	failSessions map[string]int
}

func (f *siteFactory) NewSession(ctx context.Context, p *proxy.Proxy) (browser.Session, error) {
	label := ""
	if p != nil {
		label = p.Label
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSessions[label] > 0 {
		f.failSessions[label]--
		return nil, crawlerr.NewSessionFatal("browser", "proxy denied connection", nil)
	}
	f.labels = append(f.labels, label)
	return &siteSession{site: f.site, label: label}, nil
}

func (f *siteFactory) failSessionFor(label string, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSessions == nil {
		f.failSessions = make(map[string]int)
	}
	f.failSessions[label] = times
}

func (f *siteFactory) sessionLabels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.labels...)
}
