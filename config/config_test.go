package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "zero max pages",
			mutate: func(cfg *Config) {
				cfg.MaxPages = 0
			},
			wantErr: "max pages",
		},
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.BaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "http://"
			},
			wantErr: "base URL",
		},
		{
			name: "negative page timeout",
			mutate: func(cfg *Config) {
				cfg.PageTimeout = -1 * time.Second
			},
			wantErr: "page timeout",
		},
		{
			name: "inverted delay range",
			mutate: func(cfg *Config) {
				cfg.PageDelayMin = 5 * time.Second
				cfg.PageDelayMax = time.Second
			},
			wantErr: "page delay",
		},
		{
			name: "single format",
			mutate: func(cfg *Config) {
				cfg.Formats = []string{FormatCSV}
			},
			wantErr: "two output formats",
		},
		{
			name: "unknown format",
			mutate: func(cfg *Config) {
				cfg.Formats = []string{FormatCSV, "parquet"}
			},
			wantErr: "output format",
		},
		{
			name: "unknown engine",
			mutate: func(cfg *Config) {
				cfg.Engine = "selenium"
			},
			wantErr: "engine",
		},
		{
			name: "relative webhook",
			mutate: func(cfg *Config) {
				cfg.WebhookURL = "/hooks/abc"
			},
			wantErr: "webhook",
		},
		{
			name: "backoff above cap",
			mutate: func(cfg *Config) {
				cfg.RetryBackoff = 10 * time.Second
				cfg.RetryBackoffMax = time.Second
			},
			wantErr: "retry backoff",
		},
		{
			name: "missing container selector",
			mutate: func(cfg *Config) {
				cfg.Search.Container = ""
			},
			wantErr: "selectors",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("KEYWORD", "에어포스 1")
	t.Setenv("SCRAPER_MAX_PAGES", "4")
	t.Setenv("MAX_PAGES", "9")
	t.Setenv("WEBHOOK_URL", "https://hooks.test/run")
	t.Setenv("SCRAPER_FORMATS", "csv, json,xlsx,csv")
	t.Setenv("SCRAPER_PAGE_TIMEOUT", "45s")
	t.Setenv("SCRAPER_ENGINE", "STATIC")

	cfg, err := LoadFrom(viper.New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Keyword != "에어포스 1" {
		t.Fatalf("keyword = %q", cfg.Keyword)
	}
	if cfg.MaxPages != 4 {
		t.Fatalf("max pages = %d, want prefixed value 4", cfg.MaxPages)
	}
	if cfg.WebhookURL != "https://hooks.test/run" {
		t.Fatalf("webhook = %q", cfg.WebhookURL)
	}
	if strings.Join(cfg.Formats, ",") != "csv,json,xlsx" {
		t.Fatalf("formats = %v", cfg.Formats)
	}
	if cfg.PageTimeout != 45*time.Second {
		t.Fatalf("page timeout = %s", cfg.PageTimeout)
	}
	if cfg.Engine != EngineStatic {
		t.Fatalf("engine = %q", cfg.Engine)
	}
	if cfg.Search.Container == "" {
		t.Fatalf("selectors should keep their defaults")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config should validate: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := DefaultConfig()
	if cfg.MaxPages != def.MaxPages || cfg.BaseURL != def.BaseURL || cfg.SelectorTimeout != def.SelectorTimeout {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestSafeLabel(t *testing.T) {
	if got := SafeLabel("나이키 에어포스"); got != "나이키_에어포스" {
		t.Fatalf("SafeLabel = %q", got)
	}
	if got := SafeLabel("a/b\\c"); got != "a_b_c" {
		t.Fatalf("SafeLabel = %q", got)
	}
	if got := SafeLabel("  "); got != "run" {
		t.Fatalf("SafeLabel = %q", got)
	}
}
