package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DataField describes one extracted attribute of a listing: the output
// column name and the selector candidates tried in order until one matches.
type DataField struct {
	Name      string   `json:"name" validate:"required"`
	Selectors []string `json:"xpathList" validate:"required,min=1"`
}

// DelayRange is a randomized pause between consecutive page loads, in seconds
type DelayRange struct {
	Min float64 `json:"min" validate:"gte=0"`
	Max float64 `json:"max" validate:"gte=0"`
}

// ParsingConfig controls pagination and extraction behavior
type ParsingConfig struct {
	// PageLoadTimeoutMs bounds a single navigation
	PageLoadTimeoutMs int `json:"pageLoadTimeout" validate:"gt=0"`
	// WaitForPaginationTimeoutMs bounds the wait for the pagination control
	WaitForPaginationTimeoutMs int        `json:"waitForPaginationTimeout" validate:"gt=0"`
	DelayBetweenRequests       DelayRange `json:"delayBetweenRequests"`
	// ErrorRetryTimes is the number of retries after the first failed attempt
	ErrorRetryTimes int `json:"errorRetryTimes" validate:"gte=0"`
	// MaxPages caps pagination per entry URL; 0 means unlimited
	MaxPages int `json:"maxPages" validate:"gte=0"`
	// ListingsPerPage is advisory, used only for progress logging
	ListingsPerPage int `json:"listingsPerPage" validate:"gte=0"`
}

// BrowserConfig controls the session pool
type BrowserConfig struct {
	Headless bool `json:"headless"`
	// MaxBrowsers is the number of concurrent browser sessions
	MaxBrowsers int `json:"maxBrowsers" validate:"gt=0"`
	// DetailConcurrency is the number of concurrent pages per session
	DetailConcurrency int `json:"detailConcurrency" validate:"gt=0"`
	// AcquireTimeoutMs bounds waiting for a free page slot
	AcquireTimeoutMs int `json:"acquireTimeout" validate:"gt=0"`
}

// ProxyConfig controls proxy usage and rotation
type ProxyConfig struct {
	Enabled  bool     `json:"enabled"`
	Rotation bool     `json:"rotation"`
	List     []string `json:"list"`
	// MaxFailures marks a proxy dead after this many reported failures
	MaxFailures int `json:"maxFailures" validate:"gt=0"`
}

// CacheConfig controls the listing cache
type CacheConfig struct {
	Enabled       bool   `json:"enabled"`
	CacheListings bool   `json:"cacheListings"`
	Backend       string `json:"backend" validate:"oneof=badger memcache"`
	Directory     string `json:"directory"`
	MemcacheAddr  string `json:"memcacheAddr"`
}

// OutputConfig controls the CSV sink
type OutputConfig struct {
	File      string `json:"file" validate:"required"`
	Delimiter string `json:"delimiter" validate:"len=1"`
	Encoding  string `json:"encoding" validate:"required"`
}

// PublishConfig controls the optional Redis stream of accepted records
type PublishConfig struct {
	Enabled   bool   `json:"enabled"`
	Addr      string `json:"addr"`
	DB        int    `json:"db"`
	Stream    string `json:"stream"`
	MaxLength int64  `json:"maxLength"`
}

// MetricsConfig controls the optional Prometheus endpoint
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables the endpoint
	Addr string `json:"addr"`
}

// Config represents the application configuration
type Config struct {
	CatalogSelectors     []string    `json:"catalogXpaths" validate:"required,min=1"`
	PaginationSelectors  []string    `json:"paginationXpaths" validate:"required,min=1"`
	PhoneButtonSelectors []string    `json:"phoneButtonXpaths"`
	DataFields           []DataField `json:"dataFields" validate:"required,min=1,dive"`

	Parsing ParsingConfig `json:"parsing"`
	Browser BrowserConfig `json:"playwright"`
	Proxy   ProxyConfig   `json:"proxy"`
	Cache   CacheConfig   `json:"cache"`
	Output  OutputConfig  `json:"output"`
	Publish PublishConfig `json:"publish"`
	Metrics MetricsConfig `json:"metrics"`
}

// Default returns a configuration with working defaults for every option
func Default() *Config {
	return &Config{
		CatalogSelectors: []string{
			"//div[contains(@class,'content-bar')]//a[contains(@class,'address')]",
			"a.address",
		},
		PaginationSelectors: []string{
			"//nav[contains(@class,'pagination')]",
			"nav.pagination",
		},
		PhoneButtonSelectors: []string{
			"//a[contains(@class,'phone_show_link')]",
			"a.phone_show_link",
		},
		DataFields: []DataField{
			{Name: "title", Selectors: []string{"//h1[contains(@class,'head')]", "h1.head"}},
			{Name: "price", Selectors: []string{"//div[contains(@class,'price_value')]", "div.price_value"}},
			{Name: "phone", Selectors: []string{"//span[contains(@class,'phone')]", "span.phone"}},
		},
		Parsing: ParsingConfig{
			PageLoadTimeoutMs:          30000,
			WaitForPaginationTimeoutMs: 10000,
			DelayBetweenRequests:       DelayRange{Min: 0.5, Max: 2.0},
			ErrorRetryTimes:            2,
			MaxPages:                   0,
			ListingsPerPage:            0,
		},
		Browser: BrowserConfig{
			Headless:          true,
			MaxBrowsers:       2,
			DetailConcurrency: 4,
			AcquireTimeoutMs:  60000,
		},
		Proxy: ProxyConfig{
			Enabled:     false,
			Rotation:    true,
			MaxFailures: 3,
		},
		Cache: CacheConfig{
			Enabled:       true,
			CacheListings: true,
			Backend:       "badger",
			Directory:     "cache",
			MemcacheAddr:  getEnv("MEMCACHE_ADDR", "localhost:11211"),
		},
		Output: OutputConfig{
			File:      "output",
			Delimiter: ",",
			Encoding:  "utf-8",
		},
		Publish: PublishConfig{
			Enabled:   false,
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Stream:    getEnv("REDIS_STREAM", "listings"),
			MaxLength: 10000,
		},
	}
}

// Load reads the JSON configuration at path on top of defaults and validates
// the result. An empty path yields the defaults; a named file that does not
// exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file %s does not exist", path)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Empty selector lists fall back to the built-in defaults.
	defaults := Default()
	if len(cfg.CatalogSelectors) == 0 {
		cfg.CatalogSelectors = defaults.CatalogSelectors
	}
	if len(cfg.PaginationSelectors) == 0 {
		cfg.PaginationSelectors = defaults.PaginationSelectors
	}
	if len(cfg.PhoneButtonSelectors) == 0 {
		cfg.PhoneButtonSelectors = defaults.PhoneButtonSelectors
	}
	if len(cfg.DataFields) == 0 {
		cfg.DataFields = defaults.DataFields
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural constraints and cross-field rules
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Parsing.DelayBetweenRequests.Max < c.Parsing.DelayBetweenRequests.Min {
		return fmt.Errorf("invalid configuration: delayBetweenRequests.max must be >= min")
	}
	if c.Proxy.Enabled && len(c.Proxy.List) == 0 {
		return fmt.Errorf("invalid configuration: proxy is enabled but the proxy list is empty")
	}
	if c.Cache.Backend == "memcache" && c.Cache.MemcacheAddr == "" {
		return fmt.Errorf("invalid configuration: memcache backend requires memcacheAddr")
	}
	if c.Publish.Enabled && c.Publish.Addr == "" {
		return fmt.Errorf("invalid configuration: publish is enabled but addr is empty")
	}
	return nil
}

// ReadInputURLs loads the entry catalog URLs, one per line. Blank lines and
// lines starting with # are skipped; an empty result is an error.
func ReadInputURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("input file %s contains no URLs", path)
	}
	return urls, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
