package browser

import (
	"context"

	"dkovalchuk/catalogcrawler/internal/proxy"
)

// Page represents one open tab of a browser session. Implementations are
// not safe for concurrent use; the pool hands each page to one goroutine.
type Page interface {
	// Navigate loads url and waits for the document to be ready
	Navigate(ctx context.Context, url string) error

	// Click clicks the first node matching selector
	Click(ctx context.Context, selector string) error

	// WaitVisible waits until a node matching selector is visible
	WaitVisible(ctx context.Context, selector string) error

	// Content returns the serialized HTML of the current document
	Content(ctx context.Context) (string, error)

	// Location returns the current document URL
	Location(ctx context.Context) (string, error)

	// Close closes the tab
	Close() error
}

// Session represents one browser instance bound to at most one proxy
type Session interface {
	// OpenPage opens a new tab
	OpenPage(ctx context.Context) (Page, error)

	// Close tears down the browser
	Close() error
}

// Factory creates browser sessions. p may be nil when no proxy is in use.
type Factory interface {
	NewSession(ctx context.Context, p *proxy.Proxy) (Session, error)
}
