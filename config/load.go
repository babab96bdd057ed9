package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// envAliases lists the bare variable names honoured alongside the SCRAPER_ prefixed ones.
var envAliases = map[string]string{
	"keyword":     "KEYWORD",
	"max_pages":   "MAX_PAGES",
	"webhook_url": "WEBHOOK_URL",
}

// Load reads configuration from the environment on top of DefaultConfig.
// SCRAPER_MAX_PAGES wins over MAX_PAGES when both are set.
func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom is Load with a caller supplied viper instance (tests set values directly).
func LoadFrom(v *viper.Viper) (*Config, error) {
	def := DefaultConfig()

	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		if err := v.BindEnv(key, "SCRAPER_"+strings.ToUpper(key), alias); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	v.SetDefault("site_name", def.SiteName)
	v.SetDefault("base_url", def.BaseURL)
	v.SetDefault("search_url", def.SearchURL)
	v.SetDefault("keyword", def.Keyword)
	v.SetDefault("max_pages", def.MaxPages)
	v.SetDefault("engine", def.Engine)
	v.SetDefault("page_timeout", def.PageTimeout)
	v.SetDefault("selector_timeout", def.SelectorTimeout)
	v.SetDefault("max_retries", def.MaxRetries)
	v.SetDefault("retry_backoff", def.RetryBackoff)
	v.SetDefault("retry_backoff_max", def.RetryBackoffMax)
	v.SetDefault("page_delay_min", def.PageDelayMin)
	v.SetDefault("page_delay_max", def.PageDelayMax)
	v.SetDefault("item_delay", def.ItemDelay)
	v.SetDefault("scroll_settle", def.ScrollSettle)
	v.SetDefault("max_scrolls", def.MaxScrolls)
	v.SetDefault("dedupe_max_size", def.DedupeMaxSize)
	v.SetDefault("output_dir", def.OutputDir)
	v.SetDefault("formats", strings.Join(def.Formats, ","))
	v.SetDefault("snapshot_path", def.SnapshotPath)
	v.SetDefault("webhook_url", def.WebhookURL)
	v.SetDefault("notify_timeout", def.NotifyTimeout)
	v.SetDefault("sample_size", def.SampleSize)
	v.SetDefault("user_agent", def.UserAgent)
	v.SetDefault("headless", def.Headless)
	v.SetDefault("stealth", def.Stealth)
	v.SetDefault("browser_bin", def.BrowserBin)
	v.SetDefault("metrics_addr", def.MetricsAddr)
	v.SetDefault("verbose", def.Verbose)

	cfg := *def
	cfg.SiteName = v.GetString("site_name")
	cfg.BaseURL = v.GetString("base_url")
	cfg.SearchURL = v.GetString("search_url")
	cfg.Keyword = v.GetString("keyword")
	cfg.MaxPages = v.GetInt("max_pages")
	cfg.Engine = strings.ToLower(v.GetString("engine"))
	cfg.PageTimeout = v.GetDuration("page_timeout")
	cfg.SelectorTimeout = v.GetDuration("selector_timeout")
	cfg.MaxRetries = v.GetInt("max_retries")
	cfg.RetryBackoff = v.GetDuration("retry_backoff")
	cfg.RetryBackoffMax = v.GetDuration("retry_backoff_max")
	cfg.PageDelayMin = v.GetDuration("page_delay_min")
	cfg.PageDelayMax = v.GetDuration("page_delay_max")
	cfg.ItemDelay = v.GetDuration("item_delay")
	cfg.ScrollSettle = v.GetDuration("scroll_settle")
	cfg.MaxScrolls = v.GetInt("max_scrolls")
	cfg.DedupeMaxSize = v.GetInt("dedupe_max_size")
	cfg.OutputDir = v.GetString("output_dir")
	cfg.Formats = ParseFormats(v.GetString("formats"))
	cfg.SnapshotPath = v.GetString("snapshot_path")
	cfg.WebhookURL = v.GetString("webhook_url")
	cfg.NotifyTimeout = v.GetDuration("notify_timeout")
	cfg.SampleSize = v.GetInt("sample_size")
	cfg.UserAgent = v.GetString("user_agent")
	cfg.Headless = v.GetBool("headless")
	cfg.Stealth = v.GetBool("stealth")
	cfg.BrowserBin = v.GetString("browser_bin")
	cfg.MetricsAddr = v.GetString("metrics_addr")
	cfg.Verbose = v.GetBool("verbose")

	return &cfg, nil
}

// ParseFormats splits a comma separated format list, dropping blanks and repeats.
func ParseFormats(raw string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		f := strings.ToLower(strings.TrimSpace(part))
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
