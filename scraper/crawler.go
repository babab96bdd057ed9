package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-listings/browser"
	"github.com/aluiziolira/go-scrape-listings/config"
	"github.com/aluiziolira/go-scrape-listings/models"
)

// Crawler walks search result pages 1..MaxPages on a single session, strictly in order.
type Crawler struct {
	cfg       *config.Config
	session   browser.Session
	extractor *Extractor
	metrics   *Metrics
	seen      *lru.Cache[string, struct{}]

	// sleep and jitter are replaced in tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(min, max time.Duration) time.Duration
}

// NewCrawler binds a crawler to session. The session stays owned by the caller.
func NewCrawler(cfg *config.Config, session browser.Session, metrics *Metrics) (*Crawler, error) {
	seen, err := lru.New[string, struct{}](cfg.DedupeMaxSize)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}
	return &Crawler{
		cfg:       cfg,
		session:   session,
		extractor: NewExtractor(cfg),
		metrics:   metrics,
		seen:      seen,
		sleep:     sleepContext,
		jitter:    uniformJitter,
	}, nil
}

// PageURL builds the search URL for keyword and a 1-based page index.
func PageURL(searchURL, keyword string, page int) string {
	q := url.Values{}
	q.Set("q", keyword)
	q.Set("page", strconv.Itoa(page))
	return searchURL + "?" + q.Encode()
}

// Crawl runs the page state machine. A page that never shows a result container ends the
// crawl early with TerminalPageFailed; records gathered so far are still returned.
// The only error returned is context cancellation, alongside the partial result.
func (c *Crawler) Crawl(ctx context.Context, keyword string) (*models.CrawlResult, error) {
	result := &models.CrawlResult{
		Terminal:  models.TerminalDone,
		StartTime: time.Now(),
	}
	defer func() { result.EndTime = time.Now() }()

	slog.Info("search started", slog.String("keyword", keyword), slog.Int("max_pages", c.cfg.MaxPages))

	for page := 1; page <= c.cfg.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			result.Terminal = models.TerminalPageFailed
			result.FailedPage = page
			return result, err
		}

		pageStart := time.Now()
		pageURL := PageURL(c.cfg.SearchURL, keyword, page)
		result.PagesAttempted++

		if err := c.load(ctx, result, page, pageURL); err != nil {
			if ctx.Err() != nil {
				result.Terminal = models.TerminalPageFailed
				result.FailedPage = page
				return result, ctx.Err()
			}
			c.metrics.IncPage("failed")
			c.metrics.IncError(errorTypeLabel(err))
			slog.Warn("page load failed, stopping pagination",
				slog.Int("page", page),
				slog.String("url", pageURL),
				slog.Any("error", err),
			)
			result.Terminal = models.TerminalPageFailed
			result.FailedPage = page
			return result, nil
		}

		c.stabilize(ctx, page)

		products, err := c.extractPage(ctx, result, page, pageURL)
		if err != nil {
			result.Terminal = models.TerminalPageFailed
			result.FailedPage = page
			return result, err
		}
		result.Products = append(result.Products, products...)

		c.metrics.IncPage("ok")
		c.metrics.ObserveDuration(time.Since(pageStart))
		slog.Info("page scraped", slog.Int("page", page), slog.Int("items", len(products)))

		if page < c.cfg.MaxPages {
			if err := c.sleep(ctx, c.jitter(c.cfg.PageDelayMin, c.cfg.PageDelayMax)); err != nil {
				result.Terminal = models.TerminalPageFailed
				result.FailedPage = page + 1
				return result, err
			}
		}
	}

	slog.Info("search finished", slog.Int("products", len(result.Products)), slog.Int("pages", result.PagesAttempted))
	return result, nil
}

// load navigates and waits for the first container, retrying up to MaxRetries times.
func (c *Crawler) load(ctx context.Context, result *models.CrawlResult, page int, pageURL string) error {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			result.RetryCount++
			c.metrics.IncRetries()
			delay := backoff(c.cfg.RetryBackoff, c.cfg.RetryBackoffMax, attempt)
			slog.Debug("retrying page load",
				slog.Int("page", page),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)
			if err := c.sleep(ctx, delay); err != nil {
				return err
			}
		}

		lastErr = c.session.Navigate(ctx, pageURL, c.cfg.PageTimeout)
		if lastErr == nil {
			_, lastErr = c.session.WaitForSelector(ctx, c.cfg.Search.Container, c.cfg.SelectorTimeout)
		}
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return ErrPageLoad{Page: page, URL: pageURL, Err: lastErr}
}

// stabilize scrolls until two consecutive height readings match or MaxScrolls is reached.
// Scroll problems are logged and do not fail the page.
func (c *Crawler) stabilize(ctx context.Context, page int) {
	last, err := c.session.PageHeight(ctx)
	if err != nil {
		slog.Warn("measure page height failed", slog.Int("page", page), slog.Any("error", err))
		return
	}
	for i := 0; i < c.cfg.MaxScrolls; i++ {
		if err := c.session.ScrollToBottom(ctx); err != nil {
			slog.Warn("scroll failed", slog.Int("page", page), slog.Any("error", err))
			return
		}
		if err := c.sleep(ctx, c.cfg.ScrollSettle); err != nil {
			return
		}
		height, err := c.session.PageHeight(ctx)
		if err != nil {
			slog.Warn("measure page height failed", slog.Int("page", page), slog.Any("error", err))
			return
		}
		if height == last {
			return
		}
		last = height
	}
	slog.Debug("scroll bound reached before height settled", slog.Int("page", page), slog.Int("scrolls", c.cfg.MaxScrolls))
}

func (c *Crawler) extractPage(ctx context.Context, result *models.CrawlResult, page int, pageURL string) ([]*models.Product, error) {
	elements, err := c.session.QueryAll(ctx, c.cfg.Search.Container)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// The containers were present a moment ago; treat as an empty page.
		slog.Warn("enumerate containers failed", slog.Int("page", page), slog.Any("error", err))
		c.metrics.IncError(errorTypeLabel(err))
		return nil, nil
	}

	products := make([]*models.Product, 0, len(elements))
	for idx, el := range elements {
		position := idx + 1
		product, err := c.extractor.Extract(ctx, el, page, position, slotKey(pageURL, page, position))
		if ctx.Err() != nil {
			return products, ctx.Err()
		}
		if product.Failed() {
			result.ItemErrors++
			c.metrics.IncError(errorTypeLabel(err))
			slog.Warn("item extraction failed",
				slog.Int("page", page),
				slog.Int("position", position),
				slog.Any("error", err),
			)
		} else if err != nil {
			slog.Debug("item fields defaulted",
				slog.Int("page", page),
				slog.Int("position", position),
				slog.Any("error", err),
			)
		}
		c.metrics.IncItems(string(product.Status))

		if _, dup := c.seen.Get(product.URL); dup {
			result.Duplicates++
		} else {
			c.seen.Add(product.URL, struct{}{})
		}
		products = append(products, product)
	}
	return products, nil
}

func backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := base * time.Duration(1<<(attempt-1))
	if max > 0 && delay > max {
		delay = max
	}
	return delay
}

func uniformJitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min+1)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
