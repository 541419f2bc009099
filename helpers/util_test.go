package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	assert.Equal(t, "a b c", CleanText("  a\n\tb   c "))
	assert.Equal(t, "", CleanText("   \n "))
	assert.Equal(t, "+380 67 123 45 67", CleanText("+380 67 123 45 67"))
}

func TestResolveURL(t *testing.T) {
	assert.Equal(t, "https://example.com/item/1", ResolveURL("https://example.com/catalog", "/item/1"))
	assert.Equal(t, "https://other.com/x", ResolveURL("https://example.com", "https://other.com/x"))
	assert.Equal(t, "", ResolveURL("https://example.com", "  "))
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t,
		"https://example.com/item/1",
		NormalizeURL("HTTPS://Example.COM:443/item/1/#photos"))

	// Query parameters are sorted so the same listing always maps to one key.
	assert.Equal(t,
		NormalizeURL("https://example.com/item?b=2&a=1"),
		NormalizeURL("https://example.com/item?a=1&b=2"))

	assert.NotEqual(t,
		NormalizeURL("https://example.com/item/1"),
		NormalizeURL("https://example.com/item/2"))
}

func TestPageParam(t *testing.T) {
	assert.Equal(t, 1, PageParam("https://example.com/catalog"))
	assert.Equal(t, 7, PageParam("https://example.com/catalog?page=7"))
	assert.Equal(t, 1, PageParam("https://example.com/catalog?page=abc"))
}

func TestWithPageParam(t *testing.T) {
	next := WithPageParam("https://example.com/catalog?page=2&limit=50", 3)
	assert.Equal(t, 3, PageParam(next))
	assert.Contains(t, next, "limit=50")

	first := WithPageParam("https://example.com/catalog", 2)
	assert.Equal(t, 2, PageParam(first))
}

func TestGetSplitPart(t *testing.T) {
	part, err := GetSplitPart("https://example.com/item/12345", "/", 4)
	assert.NoError(t, err)
	assert.Equal(t, "12345", part)

	_, err = GetSplitPart("a/b", "/", 5)
	assert.Error(t, err)
}
