package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-listings/browser"
	"github.com/aluiziolira/go-scrape-listings/config"
	"github.com/aluiziolira/go-scrape-listings/notify"
	"github.com/aluiziolira/go-scrape-listings/scraper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("scraper failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// globalFlags override values loaded from the environment when set explicitly.
type globalFlags struct {
	verbose     bool
	engine      string
	outputDir   string
	formats     string
	snapshot    string
	webhookURL  string
	metricsAddr string
	maxRetries  int
	headless    bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	cfg := config.DefaultConfig()

	root := &cobra.Command{
		Use:           "scraper",
		Short:         "Scrape marketplace listings and keep a price snapshot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			applyGlobalFlags(cmd, loaded, flags)
			*cfg = *loaded

			logger, level := newLogger(cfg.Verbose)
			slog.SetDefault(logger)
			slog.SetLogLoggerLevel(level.Level())
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")
	pf.StringVar(&flags.engine, "engine", "", "Browser engine: rod or static")
	pf.StringVar(&flags.outputDir, "output-dir", "", "Directory for run artifacts")
	pf.StringVar(&flags.formats, "formats", "", "Comma separated output formats (json,csv,xlsx)")
	pf.StringVar(&flags.snapshot, "snapshot", "", "Path of the cumulative CSV snapshot")
	pf.StringVar(&flags.webhookURL, "webhook-url", "", "Webhook notified after each run")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	pf.IntVar(&flags.maxRetries, "max-retries", 0, "Maximum retry attempts per page load")
	pf.BoolVar(&flags.headless, "headless", false, "Run the browser without a window")

	root.AddCommand(newSearchCmd(cfg), newTrackCmd(cfg))
	return root
}

func applyGlobalFlags(cmd *cobra.Command, cfg *config.Config, flags *globalFlags) {
	fs := cmd.Flags()
	if fs.Changed("verbose") {
		cfg.Verbose = flags.verbose
	}
	if fs.Changed("engine") {
		cfg.Engine = flags.engine
	}
	if fs.Changed("output-dir") {
		cfg.OutputDir = flags.outputDir
	}
	if fs.Changed("formats") {
		cfg.Formats = config.ParseFormats(flags.formats)
	}
	if fs.Changed("snapshot") {
		cfg.SnapshotPath = flags.snapshot
	}
	if fs.Changed("webhook-url") {
		cfg.WebhookURL = flags.webhookURL
	}
	if fs.Changed("metrics-addr") {
		cfg.MetricsAddr = flags.metricsAddr
	}
	if fs.Changed("max-retries") {
		cfg.MaxRetries = flags.maxRetries
	}
	if fs.Changed("headless") {
		cfg.Headless = flags.headless
	}
}

func newSearchCmd(cfg *config.Config) *cobra.Command {
	var (
		keyword string
		pages   int
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Crawl search result pages for a keyword",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("keyword") {
				cfg.Keyword = keyword
			}
			if cmd.Flags().Changed("pages") {
				cfg.MaxPages = pages
			}
			if cfg.Keyword == "" {
				return fmt.Errorf("keyword cannot be empty")
			}
			return execute(cfg, func(ctx context.Context, s *scraper.Scraper) (*scraper.Report, error) {
				slog.Info("starting search",
					slog.String("keyword", cfg.Keyword),
					slog.Int("pages", cfg.MaxPages),
					slog.String("engine", cfg.Engine),
				)
				return s.RunSearch(ctx, cfg.Keyword)
			})
		},
	}
	cmd.Flags().StringVarP(&keyword, "keyword", "k", "", "Search keyword")
	cmd.Flags().IntVarP(&pages, "pages", "p", 0, "Maximum result pages to scrape")
	return cmd
}

func newTrackCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "track <file|url,url,...>",
		Short: "Scrape name and price from a list of product pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			urls, err := scraper.LoadURLList(args[0])
			if err != nil {
				return err
			}
			if len(urls) == 0 {
				return fmt.Errorf("no product urls in %q", args[0])
			}
			return execute(cfg, func(ctx context.Context, s *scraper.Scraper) (*scraper.Report, error) {
				slog.Info("starting track", slog.Int("urls", len(urls)), slog.String("engine", cfg.Engine))
				return s.RunTrack(ctx, urls)
			})
		},
	}
}

type runFunc func(ctx context.Context, s *scraper.Scraper) (*scraper.Report, error)

func execute(cfg *config.Config, run runFunc) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	opener, err := browser.NewOpener(cfg)
	if err != nil {
		return err
	}
	var notifier scraper.Notifier
	if hook := notify.NewWebhookNotifier(cfg.WebhookURL, cfg.SampleSize, cfg.NotifyTimeout); hook != nil {
		notifier = hook
	}
	s := scraper.NewScraper(cfg, opener, notifier)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// closed before stop runs, so a normal exit is not reported as a signal
	done := make(chan struct{})
	defer close(done)
	watchSignal(ctx, done)

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	report, runErr := run(ctx, s)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if report != nil {
		printSummary(report)
	}
	return runErr
}

// watchSignal logs once if ctx ends before done is closed. The returned channel reports
// whether it did.
func watchSignal(ctx context.Context, done <-chan struct{}) <-chan bool {
	logged := make(chan bool, 1)
	go func() {
		select {
		case <-done:
			logged <- false
		case <-ctx.Done():
			select {
			case <-done:
				logged <- false
				return
			default:
			}
			slog.Info("shutdown signal received, closing browser")
			logged <- true
		}
	}()
	return logged
}

func printSummary(report *scraper.Report) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	if result := report.Result; result != nil {
		fmt.Printf("  Terminal:      %s\n", result.Terminal)
		if result.StoppedEarly() && result.FailedPage > 0 {
			fmt.Printf("  Stopped at:    page %d\n", result.FailedPage)
		}
		fmt.Printf("  Pages:         %d\n", result.PagesAttempted)
		fmt.Printf("  Item errors:   %d\n", result.ItemErrors)
		fmt.Printf("  Duplicates:    %d\n", result.Duplicates)
		fmt.Printf("  Retries:       %d\n", result.RetryCount)
	}
	if summary := report.Summary; summary != nil {
		fmt.Printf("  Label:         %s\n", summary.Label)
		fmt.Printf("  Total items:   %d\n", summary.TotalCount)
		fmt.Printf("  Priced:        %d\n", summary.PricedCount)
		fmt.Printf("  Failed:        %d\n", summary.FailedCount)
		fmt.Printf("  Avg price:     %d\n", summary.AvgPrice)
		fmt.Printf("  Min price:     %d\n", summary.MinPrice)
		fmt.Printf("  Max price:     %d\n", summary.MaxPrice)

		keys := make([]string, 0, len(summary.Files))
		for k := range summary.Files {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %-14s %s\n", k+":", summary.Files[k])
		}
	}
	fmt.Printf("  Snapshot:      %d records\n", report.SnapshotTotal)
	fmt.Printf("  Duration:      %v\n", report.Duration)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
