package browser

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/chromedp"

	"dkovalchuk/catalogcrawler/internal/proxy"
	"dkovalchuk/catalogcrawler/logger"
	crawlerr "dkovalchuk/catalogcrawler/pkg/errors"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Error substrings that indicate the upstream proxy rejected or dropped the
// connection. Navigations failing this way kill the whole session.
var proxyDeniedPatterns = []string{
	"ERR_PROXY_CONNECTION_FAILED",
	"ERR_TUNNEL_CONNECTION_FAILED",
	"ERR_INVALID_AUTH_CREDENTIALS",
	"ERR_CONNECTION_CLOSED",
	"403",
	"407",
}

// ChromeFactory creates chromedp-backed sessions
type ChromeFactory struct {
	headless  bool
	userAgent string
	log       *logger.Logger
}

// NewChromeFactory creates a factory for headless (or headed) Chrome sessions
func NewChromeFactory(headless bool) *ChromeFactory {
	return &ChromeFactory{
		headless:  headless,
		userAgent: defaultUserAgent,
		log:       logger.ForComponent("browser"),
	}
}

// chromeSession owns one exec allocator and its browser context
type chromeSession struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
	log         *logger.Logger
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession launches a browser, optionally behind p, and verifies it
// responds before handing it out
func (f *ChromeFactory) NewSession(ctx context.Context, p *proxy.Proxy) (Session, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(f.userAgent),
	)
	if p != nil {
		opts = append(opts, chromedp.ProxyServer(p.Server))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	if p != nil && p.HasAuth() {
		enableProxyAuth(browserCtx, p)
	}

	// Startup test: a session that cannot load about:blank is useless.
	testCtx, testCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		cancel()
		allocCancel()
		return nil, classifyNavError("browser", err)
	}

	label := ""
	if p != nil {
		label = p.Label
	}
	f.log.Debug().Str("proxy", label).Msg("Browser session started")

	return &chromeSession{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		cancel:      cancel,
		log:         f.log,
	}, nil
}

// enableProxyAuth answers the proxy's 407 challenge with the configured
// credentials via the Fetch domain
func enableProxyAuth(ctx context.Context, p *proxy.Proxy) {
	execCtx := func() context.Context {
		return cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Target)
	}
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *fetch.EventAuthRequired:
			go func() {
				_ = fetch.ContinueWithAuth(e.RequestID, &fetch.AuthChallengeResponse{
					Response: fetch.AuthChallengeResponseResponseProvideCredentials,
					Username: p.Username,
					Password: p.Password,
				}).Do(execCtx())
			}()
		case *fetch.EventRequestPaused:
			go func() {
				_ = fetch.ContinueRequest(e.RequestID).Do(execCtx())
			}()
		}
	})
	_ = chromedp.Run(ctx, fetch.Enable().WithHandleAuthRequests(true))
}

// OpenPage opens a new tab in this session
func (s *chromeSession) OpenPage(ctx context.Context) (Page, error) {
	pageCtx, cancel := chromedp.NewContext(s.browserCtx)
	if err := chromedp.Run(pageCtx); err != nil {
		cancel()
		return nil, classifyNavError("browser", err)
	}
	return &chromePage{ctx: pageCtx, cancel: cancel}, nil
}

// Close tears down the browser and its allocator
func (s *chromeSession) Close() error {
	s.cancel()
	s.allocCancel()
	return nil
}

// Navigate loads url and waits for the body to be ready
func (p *chromePage) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := mergeDeadline(p.ctx, ctx)
	defer cancel()
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return classifyNavError("page", err)
	}
	return nil
}

// Click clicks the first node matching selector
func (p *chromePage) Click(ctx context.Context, selector string) error {
	runCtx, cancel := mergeDeadline(p.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Click(normalizeSelector(selector), selectorBy(selector))); err != nil {
		return classifyNavError("page", err)
	}
	return nil
}

// WaitVisible waits until a node matching selector is visible
func (p *chromePage) WaitVisible(ctx context.Context, selector string) error {
	runCtx, cancel := mergeDeadline(p.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.WaitVisible(normalizeSelector(selector), selectorBy(selector))); err != nil {
		return classifyNavError("page", err)
	}
	return nil
}

// Content returns the serialized HTML of the current document
func (p *chromePage) Content(ctx context.Context) (string, error) {
	runCtx, cancel := mergeDeadline(p.ctx, ctx)
	defer cancel()
	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", classifyNavError("page", err)
	}
	return html, nil
}

// Location returns the current document URL
func (p *chromePage) Location(ctx context.Context) (string, error) {
	runCtx, cancel := mergeDeadline(p.ctx, ctx)
	defer cancel()
	var loc string
	if err := chromedp.Run(runCtx, chromedp.Location(&loc)); err != nil {
		return "", classifyNavError("page", err)
	}
	return loc, nil
}

// Close closes the tab
func (p *chromePage) Close() error {
	p.cancel()
	return nil
}

// mergeDeadline applies the caller deadline (if any) on top of the page
// context so chromedp actions respect both lifetimes
func mergeDeadline(pageCtx, callCtx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := callCtx.Deadline(); ok {
		return context.WithDeadline(pageCtx, deadline)
	}
	return context.WithCancel(pageCtx)
}

// IsXPathSelector reports whether a selector candidate should be evaluated
// as XPath rather than CSS
func IsXPathSelector(selector string) bool {
	return strings.HasPrefix(selector, "//") ||
		strings.HasPrefix(selector, "(") ||
		strings.HasPrefix(selector, "xpath=")
}

func normalizeSelector(selector string) string {
	return strings.TrimPrefix(selector, "xpath=")
}

func selectorBy(selector string) chromedp.QueryOption {
	if IsXPathSelector(selector) {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// classifyNavError maps a chromedp error to the crawl error taxonomy:
// proxy-denied patterns are session-fatal, elapsed deadlines are timeouts,
// anything else is a transient network error.
func classifyNavError(component string, err error) error {
	msg := err.Error()
	for _, pattern := range proxyDeniedPatterns {
		if strings.Contains(msg, pattern) {
			return crawlerr.NewSessionFatal(component, "proxy denied connection", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return crawlerr.NewTimeout(component, "operation timed out", err)
	}
	return crawlerr.NewNetwork(component, "browser operation failed", err)
}
