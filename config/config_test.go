package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 2, cfg.Browser.MaxBrowsers)
	assert.Equal(t, 4, cfg.Browser.DetailConcurrency)
	assert.Equal(t, "badger", cfg.Cache.Backend)
	assert.NotEmpty(t, cfg.CatalogSelectors)
	assert.NotEmpty(t, cfg.DataFields)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeTemp(t, "config.json", `{
		"catalogXpaths": ["a.listing"],
		"paginationXpaths": ["nav.pager"],
		"dataFields": [
			{"name": "title", "xpathList": ["h1"]},
			{"name": "phone", "xpathList": ["span.phone"]}
		],
		"parsing": {
			"pageLoadTimeout": 15000,
			"waitForPaginationTimeout": 5000,
			"delayBetweenRequests": {"min": 0.1, "max": 0.3},
			"errorRetryTimes": 3,
			"maxPages": 10
		},
		"playwright": {
			"headless": false,
			"maxBrowsers": 3,
			"detailConcurrency": 2,
			"acquireTimeout": 30000
		},
		"output": {"file": "out/listings.csv", "delimiter": ";", "encoding": "utf-8"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.listing"}, cfg.CatalogSelectors)
	assert.Equal(t, 15000, cfg.Parsing.PageLoadTimeoutMs)
	assert.Equal(t, 3, cfg.Parsing.ErrorRetryTimes)
	assert.Equal(t, 10, cfg.Parsing.MaxPages)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 3, cfg.Browser.MaxBrowsers)
	assert.Equal(t, 2, cfg.Browser.DetailConcurrency)
	assert.Equal(t, ";", cfg.Output.Delimiter)
	assert.Len(t, cfg.DataFields, 2)
}

func TestLoadEmptySelectorListsFallBackToDefaults(t *testing.T) {
	path := writeTemp(t, "config.json", `{
		"catalogXpaths": [],
		"dataFields": []
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().CatalogSelectors, cfg.CatalogSelectors)
	assert.Equal(t, Default().DataFields, cfg.DataFields)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadMalformedJSON(t *testing.T) {
	path := writeTemp(t, "bad.json", `{"catalogXpaths": [`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateProxyEnabledEmptyList(t *testing.T) {
	cfg := Default()
	cfg.Proxy.Enabled = true
	cfg.Proxy.List = nil

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proxy list is empty")
}

func TestValidateDelayRange(t *testing.T) {
	cfg := Default()
	cfg.Parsing.DelayBetweenRequests = DelayRange{Min: 2.0, Max: 0.5}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delayBetweenRequests")
}

func TestValidateBadBackend(t *testing.T) {
	cfg := Default()
	cfg.Cache.Backend = "sqlite"
	assert.Error(t, cfg.Validate())
}

func TestValidateZeroConcurrency(t *testing.T) {
	cfg := Default()
	cfg.Browser.MaxBrowsers = 0
	assert.Error(t, cfg.Validate())
}

func TestReadInputURLs(t *testing.T) {
	path := writeTemp(t, "input.txt", `
# entry catalogs
https://example.com/catalog?page=1

https://example.com/other
`)
	urls, err := ReadInputURLs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.com/catalog?page=1",
		"https://example.com/other",
	}, urls)
}

func TestReadInputURLsEmpty(t *testing.T) {
	path := writeTemp(t, "input.txt", "# only comments\n\n")
	_, err := ReadInputURLs(path)
	assert.Error(t, err)
}
