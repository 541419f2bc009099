package helpers

import (
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// GetSplitPart returns the index-th part of target split by separate
func GetSplitPart(target string, separate string, index int) (string, error) {
	parts := strings.Split(target, separate)
	if index >= len(parts) {
		return "", errors.New("index out of range")
	}
	return parts[index], nil
}

// CleanText collapses all runs of whitespace into single spaces and trims
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ResolveURL resolves href against base, returning href unchanged when it
// is already absolute or base is unparsable
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}

// NormalizeURL produces the canonical form of a listing URL used as a
// cache/identity key: lowercased scheme and host, default port and fragment
// stripped, query parameters sorted, trailing slash removed.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Host[:strings.LastIndex(u.Host, ":")]
	}
	if q := u.Query(); len(q) > 0 {
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, k := range keys {
			vs := q[k]
			sort.Strings(vs)
			for _, v := range vs {
				if b.Len() > 0 {
					b.WriteByte('&')
				}
				b.WriteString(url.QueryEscape(k))
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(v))
			}
		}
		u.RawQuery = b.String()
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// PageParam returns the value of the "page" query parameter, defaulting to 1
// when absent or malformed
func PageParam(raw string) int {
	u, err := url.Parse(raw)
	if err != nil {
		return 1
	}
	v := u.Query().Get("page")
	if v == "" {
		return 1
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// WithQueryParam returns raw with the given query parameter set, leaving the
// rest of the URL untouched
func WithQueryParam(raw, key, value string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// WithPageParam returns raw with the "page" query parameter set to page
func WithPageParam(raw string, page int) string {
	return WithQueryParam(raw, "page", strconv.Itoa(page))
}

// StripFragment removes the #fragment part of a URL, used to canonicalize
// pagination loop detection
func StripFragment(raw string) string {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		return raw[:i]
	}
	return raw
}
