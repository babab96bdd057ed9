package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-listings/browser"
	"github.com/aluiziolira/go-scrape-listings/config"
	"github.com/aluiziolira/go-scrape-listings/models"
	"github.com/aluiziolira/go-scrape-listings/pipeline"
)

const (
	modeSearch = "search"
	modeTrack  = "track"

	// TrackLabel names the artifacts of a track run.
	TrackLabel = "tracked"
)

// Notifier delivers the outcome of a run to an external channel.
type Notifier interface {
	Notify(ctx context.Context, summary *models.RunSummary, products []*models.Product) error
}

// Report is what a finished run hands back to the caller.
type Report struct {
	Result        *models.CrawlResult
	Summary       *models.RunSummary
	SnapshotTotal int
	Duration      time.Duration
}

// Scraper orchestrates one run: open a session, collect records, reconcile the snapshot,
// write artifacts and notify.
type Scraper struct {
	cfg       *config.Config
	open      browser.Opener
	store     *pipeline.Store
	persister *pipeline.Persister
	notifier  Notifier
	Metrics   *Metrics
}

// NewScraper builds a runner. notifier may be nil.
func NewScraper(cfg *config.Config, open browser.Opener, notifier Notifier) *Scraper {
	return &Scraper{
		cfg:       cfg,
		open:      open,
		store:     pipeline.NewStore(cfg.SnapshotPath),
		persister: pipeline.NewPersister(cfg),
		notifier:  notifier,
		Metrics:   NewMetrics(),
	}
}

// RunSearch crawls the result pages for keyword.
func (s *Scraper) RunSearch(ctx context.Context, keyword string) (*Report, error) {
	run := pipeline.RunInfo{Site: s.cfg.SiteName, Label: keyword, Source: "search:" + s.cfg.SiteName}
	return s.run(ctx, modeSearch, run, func(ctx context.Context, session browser.Session) (*models.CrawlResult, error) {
		crawler, err := NewCrawler(s.cfg, session, s.Metrics)
		if err != nil {
			return nil, err
		}
		return crawler.Crawl(ctx, keyword)
	})
}

// RunTrack visits every product URL in urls.
func (s *Scraper) RunTrack(ctx context.Context, urls []string) (*Report, error) {
	run := pipeline.RunInfo{Site: s.cfg.SiteName, Label: TrackLabel, Source: "track:" + s.cfg.SiteName}
	return s.run(ctx, modeTrack, run, func(ctx context.Context, session browser.Session) (*models.CrawlResult, error) {
		tracker, err := NewTracker(s.cfg, session, s.Metrics)
		if err != nil {
			return nil, err
		}
		return tracker.Track(ctx, urls)
	})
}

type collectFunc func(ctx context.Context, session browser.Session) (*models.CrawlResult, error)

func (s *Scraper) run(ctx context.Context, mode string, run pipeline.RunInfo, collect collectFunc) (*Report, error) {
	start := time.Now()

	session, err := s.open(ctx)
	if err != nil {
		setupErr := ErrSetup{Err: err}
		s.Metrics.IncError(errorTypeLabel(setupErr))
		s.Metrics.IncRun(mode, "setup_failed")
		return nil, setupErr
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Warn("close browser session", slog.Any("error", err))
		}
	}()

	result, err := collect(ctx, session)
	if err != nil {
		if result == nil {
			setupErr := ErrSetup{Err: err}
			s.Metrics.IncError(errorTypeLabel(setupErr))
			s.Metrics.IncRun(mode, "setup_failed")
			return nil, setupErr
		}
		s.Metrics.IncError(errorTypeLabel(err))
		s.Metrics.IncRun(mode, "canceled")
		return &Report{Result: result, Duration: time.Since(start)}, err
	}
	run.Terminal = result.Terminal
	report := &Report{Result: result}

	// snapshot and artifacts must agree on every record's status
	records := pipeline.Prepare(result.Products)

	merged, storeErr := s.store.Update(ctx, records)
	if storeErr != nil {
		storeErr = &pipeline.PersistenceError{Artifacts: []pipeline.ArtifactError{
			{Format: "snapshot", Path: s.store.Path(), Err: storeErr},
		}}
	}
	report.SnapshotTotal = len(merged)

	summary, persistErr := s.persister.Persist(run, records)
	report.Summary = summary
	report.Duration = time.Since(start)

	if err := errors.Join(storeErr, persistErr); err != nil {
		s.Metrics.IncError(errorTypeLabel(err))
		s.Metrics.IncRun(mode, "persistence_failed")
		slog.Error("saving results failed", slog.String("mode", mode), slog.Any("error", err))
		return report, err
	}

	s.Metrics.SetPrices(summary.AvgPrice, summary.MinPrice, summary.MaxPrice)
	s.Metrics.IncRun(mode, string(result.Terminal))
	s.notify(ctx, summary, records)

	slog.Info("run finished",
		slog.String("mode", mode),
		slog.String("terminal", string(result.Terminal)),
		slog.Int("products", summary.TotalCount),
		slog.Int("snapshot_total", report.SnapshotTotal),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

// notify never fails the run.
func (s *Scraper) notify(ctx context.Context, summary *models.RunSummary, products []*models.Product) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, summary, products); err != nil {
		s.Metrics.IncError("notify")
		slog.Warn("notification failed", slog.Any("error", err))
		return
	}
	slog.Info("notification sent", slog.Int("products", summary.TotalCount))
}
