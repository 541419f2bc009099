package crawler

import (
	"strings"
	"sync"
)

// phoneSeparators splits a raw phone field into individual numbers
var phoneSeparators = func(r rune) bool {
	switch r {
	case ',', '\n', '·', ';':
		return true
	}
	return false
}

// NormalizePhone reduces a raw phone string to digits only
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsMaskedPhone reports whether a raw phone string still carries the site's
// placeholder characters, e.g. "(067) XXX-XX-67"
func IsMaskedPhone(raw string) bool {
	return strings.Contains(strings.ToUpper(raw), "X")
}

// SplitPhones splits a raw phone field on commas, newlines, middots and
// semicolons and normalizes each part, dropping empties
func SplitPhones(raw string) []string {
	var phones []string
	for _, part := range strings.FieldsFunc(raw, phoneSeparators) {
		if n := NormalizePhone(part); n != "" {
			phones = append(phones, n)
		}
	}
	return phones
}

// Deduper rejects listings whose phone numbers were already seen this run.
// Listings without any phone number are always accepted.
type Deduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

// NewDeduper creates an empty deduper
func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[string]bool)}
}

// Accept atomically checks all of the listing's phones and records them.
// It returns false when any phone was seen before; a rejected listing's
// unseen phones are NOT recorded, so a later listing may still claim them.
func (d *Deduper) Accept(phones []string) bool {
	if len(phones) == 0 {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range phones {
		if d.seen[p] {
			return false
		}
	}
	for _, p := range phones {
		d.seen[p] = true
	}
	return true
}

// Size returns the number of distinct phones recorded so far
func (d *Deduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
