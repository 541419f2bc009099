package crawler

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"dkovalchuk/catalogcrawler/helpers"
	"dkovalchuk/catalogcrawler/internal/browser"
)

// Document is a parsed HTML snapshot queryable by both CSS and XPath
// selectors. Candidates starting with "//", "(" or "xpath=" are treated
// as XPath; everything else as CSS.
type Document struct {
	root *html.Node
	doc  *goquery.Document
}

// ParseDocument parses an HTML snapshot
func ParseDocument(content string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, err
	}
	return &Document{
		root: root,
		doc:  goquery.NewDocumentFromNode(root),
	}, nil
}

// FirstText returns the cleaned text of the first node matched by any of
// the selector candidates, tried in order
func (d *Document) FirstText(selectors []string) string {
	for _, sel := range selectors {
		if browser.IsXPathSelector(sel) {
			node, err := htmlquery.Query(d.root, xpathOf(sel))
			if err == nil && node != nil {
				if text := helpers.CleanText(htmlquery.InnerText(node)); text != "" {
					return text
				}
			}
			continue
		}
		s := d.doc.Find(sel).First()
		if s.Length() > 0 {
			if text := helpers.CleanText(s.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

// FirstAttr returns the named attribute of the first node matched by any of
// the selector candidates
func (d *Document) FirstAttr(selectors []string, attr string) string {
	for _, sel := range selectors {
		if browser.IsXPathSelector(sel) {
			node, err := htmlquery.Query(d.root, xpathOf(sel))
			if err == nil && node != nil {
				if v := strings.TrimSpace(htmlquery.SelectAttr(node, attr)); v != "" {
					return v
				}
			}
			continue
		}
		if v, ok := d.doc.Find(sel).First().Attr(attr); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// Links collects the href targets of every node matched by the first
// selector candidate that matches anything, resolved against baseURL and
// de-duplicated in document order
func (d *Document) Links(selectors []string, baseURL string) []string {
	for _, sel := range selectors {
		var hrefs []string
		if browser.IsXPathSelector(sel) {
			nodes, err := htmlquery.QueryAll(d.root, xpathOf(sel))
			if err != nil {
				continue
			}
			for _, node := range nodes {
				hrefs = append(hrefs, nodeHref(node))
			}
		} else {
			d.doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
				href, _ := s.Attr("href")
				hrefs = append(hrefs, href)
			})
		}

		var out []string
		seen := make(map[string]bool)
		for _, href := range hrefs {
			abs := helpers.ResolveURL(baseURL, href)
			if abs == "" || seen[abs] {
				continue
			}
			seen[abs] = true
			out = append(out, abs)
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// HasAny reports whether any selector candidate matches at least one node
func (d *Document) HasAny(selectors []string) bool {
	for _, sel := range selectors {
		if browser.IsXPathSelector(sel) {
			node, err := htmlquery.Query(d.root, xpathOf(sel))
			if err == nil && node != nil {
				return true
			}
			continue
		}
		if d.doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

// nodeHref returns the node's own href, or the href of the nearest anchor
// when the selector matched a descendant of the link
func nodeHref(node *html.Node) string {
	for n := node; n != nil; n = n.Parent {
		if n.Type == html.ElementNode {
			if href := htmlquery.SelectAttr(n, "href"); href != "" {
				return href
			}
		}
	}
	return ""
}

func xpathOf(sel string) string {
	return strings.TrimPrefix(sel, "xpath=")
}
