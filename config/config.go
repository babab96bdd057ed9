package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Engine names the browser backend used to render pages.
const (
	EngineRod    = "rod"
	EngineStatic = "static"
)

// Output formats understood by the persister.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// SearchSelectors locates the fields of one result container on a search page.
type SearchSelectors struct {
	Container     string
	Name          string
	Price         string
	OriginalPrice string
	Link          string
	Image         string
	Rating        string
	ReviewCount   string
	ExpressBadge  string
}

// DetailSelectors locates fields on a single product page.
type DetailSelectors struct {
	Name  string
	Price string
}

// Config holds scraper configuration.
type Config struct {
	SiteName        string
	BaseURL         string
	SearchURL       string
	Keyword         string
	MaxPages        int
	Engine          string
	PageTimeout     time.Duration
	SelectorTimeout time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	PageDelayMin    time.Duration
	PageDelayMax    time.Duration
	ItemDelay       time.Duration
	ScrollSettle    time.Duration
	MaxScrolls      int
	DedupeMaxSize   int
	OutputDir       string
	Formats         []string
	SnapshotPath    string
	WebhookURL      string
	NotifyTimeout   time.Duration
	SampleSize      int
	UserAgent       string
	Headless        bool
	Stealth         bool
	BrowserBin      string
	MetricsAddr     string
	Verbose         bool
	Search          SearchSelectors
	Detail          DetailSelectors
}

// DefaultConfig returns conservative defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		SiteName:        "coupang",
		BaseURL:         "https://www.coupang.com",
		SearchURL:       "https://www.coupang.com/np/search",
		Keyword:         "나이키 에어포스",
		MaxPages:        2,
		Engine:          EngineRod,
		PageTimeout:     30 * time.Second,
		SelectorTimeout: 10 * time.Second,
		MaxRetries:      3,
		RetryBackoff:    500 * time.Millisecond,
		RetryBackoffMax: 5 * time.Second,
		PageDelayMin:    2 * time.Second,
		PageDelayMax:    5 * time.Second,
		ItemDelay:       2 * time.Second,
		ScrollSettle:    2 * time.Second,
		MaxScrolls:      10,
		DedupeMaxSize:   10000,
		OutputDir:       "results",
		Formats:         []string{FormatJSON, FormatCSV},
		SnapshotPath:    "coupang_data.csv",
		NotifyTimeout:   30 * time.Second,
		SampleSize:      10,
		UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Headless:        true,
		Stealth:         true,
		Search: SearchSelectors{
			Container:     "li[data-component-type='s-search-result']",
			Name:          "div.name",
			Price:         "strong.price-value",
			OriginalPrice: "del.base-price",
			Link:          "a",
			Image:         "img",
			Rating:        "em.rating",
			ReviewCount:   "span.rating-total-review",
			ExpressBadge:  ".rocket-badge",
		},
		Detail: DetailSelectors{
			Name:  "h2.prod-buy-header__title",
			Price: "span.total-price",
		},
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if c.SearchURL != "" {
		if u, err := url.Parse(c.SearchURL); err != nil || u.Host == "" {
			return fmt.Errorf("search URL must be absolute")
		}
	}
	if c.WebhookURL != "" {
		if u, err := url.Parse(c.WebhookURL); err != nil || u.Host == "" {
			return fmt.Errorf("webhook URL must be absolute")
		}
	}

	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.Engine != EngineRod && c.Engine != EngineStatic {
		return fmt.Errorf("engine must be %s or %s", EngineRod, EngineStatic)
	}
	if c.PageTimeout <= 0 {
		return fmt.Errorf("page timeout must be positive")
	}
	if c.SelectorTimeout <= 0 {
		return fmt.Errorf("selector timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.PageDelayMin < 0 || c.PageDelayMax < c.PageDelayMin {
		return fmt.Errorf("page delay range [%s, %s] is invalid", c.PageDelayMin, c.PageDelayMax)
	}
	if c.ItemDelay < 0 {
		return fmt.Errorf("item delay cannot be negative")
	}
	if c.ScrollSettle < 0 {
		return fmt.Errorf("scroll settle cannot be negative")
	}
	if c.MaxScrolls <= 0 {
		return fmt.Errorf("max scrolls must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output dir cannot be empty")
	}
	if len(c.Formats) < 2 {
		return fmt.Errorf("at least two output formats are required")
	}
	for _, f := range c.Formats {
		if f != FormatJSON && f != FormatCSV && f != FormatXLSX {
			return fmt.Errorf("output format must be json, csv, or xlsx, got %q", f)
		}
	}
	if c.SnapshotPath == "" {
		return fmt.Errorf("snapshot path cannot be empty")
	}
	if c.SampleSize < 0 {
		return fmt.Errorf("sample size cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Search.Container == "" || c.Search.Name == "" || c.Search.Price == "" || c.Search.Link == "" {
		return fmt.Errorf("search selectors for container, name, price and link are required")
	}
	if c.Detail.Price == "" {
		return fmt.Errorf("detail price selector is required")
	}

	return nil
}

// SearchLabel is the keyword made safe for file names.
func (c *Config) SearchLabel() string {
	return SafeLabel(c.Keyword)
}

// SafeLabel replaces spaces and path separators so label can be embedded in a file name.
func SafeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "run"
	}
	return strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_").Replace(label)
}
