package scraper

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-listings/browser"
	"github.com/aluiziolira/go-scrape-listings/config"
	"github.com/aluiziolira/go-scrape-listings/models"
)

// LoadURLList reads arg as a newline separated file when it names a regular file, otherwise
// as a comma separated list. Blank entries are dropped.
func LoadURLList(arg string) ([]string, error) {
	var raw []string
	// a long inline list can fail Stat with ENAMETOOLONG; that still means "not a file"
	if info, err := os.Stat(arg); err == nil && info.Mode().IsRegular() {
		f, err := os.Open(arg)
		if err != nil {
			return nil, fmt.Errorf("open url list %s: %w", arg, err)
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			raw = append(raw, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read url list %s: %w", arg, err)
		}
	} else {
		raw = strings.Split(arg, ",")
	}

	urls := make([]string, 0, len(raw))
	for _, u := range raw {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls, nil
}

// Tracker visits a fixed list of product pages one after another.
type Tracker struct {
	cfg       *config.Config
	session   browser.Session
	extractor *DetailExtractor
	metrics   *Metrics
	seen      *lru.Cache[string, struct{}]
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewTracker binds a tracker to session. The session stays owned by the caller.
func NewTracker(cfg *config.Config, session browser.Session, metrics *Metrics) (*Tracker, error) {
	seen, err := lru.New[string, struct{}](cfg.DedupeMaxSize)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}
	return &Tracker{
		cfg:       cfg,
		session:   session,
		extractor: NewDetailExtractor(cfg),
		metrics:   metrics,
		seen:      seen,
		sleep:     sleepContext,
	}, nil
}

// Track scrapes every URL. A page that fails to load becomes a failed record; the run
// continues with the next URL. Repeated URLs are visited once.
func (t *Tracker) Track(ctx context.Context, urls []string) (*models.CrawlResult, error) {
	result := &models.CrawlResult{
		Terminal:  models.TerminalDone,
		StartTime: time.Now(),
	}
	defer func() { result.EndTime = time.Now() }()

	position := 0
	for _, productURL := range urls {
		if err := ctx.Err(); err != nil {
			result.Terminal = models.TerminalPageFailed
			return result, err
		}
		if _, dup := t.seen.Get(productURL); dup {
			result.Duplicates++
			slog.Debug("skipping repeated url", slog.String("url", productURL))
			continue
		}
		t.seen.Add(productURL, struct{}{})
		position++
		result.PagesAttempted++

		product := t.visit(ctx, productURL, position)
		if ctx.Err() != nil {
			result.Terminal = models.TerminalPageFailed
			return result, ctx.Err()
		}
		if product.Failed() {
			result.ItemErrors++
			t.metrics.IncPage("failed")
		} else {
			t.metrics.IncPage("ok")
			slog.Info("product scraped", slog.String("name", product.Name), slog.Int("price", product.Price))
		}
		t.metrics.IncItems(string(product.Status))
		result.Products = append(result.Products, product)

		if err := t.sleep(ctx, t.cfg.ItemDelay); err != nil {
			result.Terminal = models.TerminalPageFailed
			return result, err
		}
	}
	return result, nil
}

func (t *Tracker) visit(ctx context.Context, productURL string, position int) *models.Product {
	slog.Info("visiting product", slog.String("url", productURL))

	err := t.session.Navigate(ctx, productURL, t.cfg.PageTimeout)
	if err == nil {
		_, err = t.session.WaitForSelector(ctx, t.cfg.Detail.Price, t.cfg.SelectorTimeout)
	}
	if err != nil {
		loadErr := ErrPageLoad{Page: position, URL: productURL, Err: err}
		t.metrics.IncError(errorTypeLabel(loadErr))
		slog.Warn("product page failed", slog.String("url", productURL), slog.Any("error", err))
		return models.NewFailedProduct(productURL, 1, position, t.extractor.source, loadErr, t.extractor.now())
	}

	product, err := t.extractor.Extract(ctx, t.session, productURL, position)
	if err != nil {
		t.metrics.IncError(errorTypeLabel(err))
		slog.Warn("product extraction failed", slog.String("url", productURL), slog.Any("error", err))
	}
	return product
}
