package pipeline

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-listings/config"
	"github.com/aluiziolira/go-scrape-listings/models"
)

// TimestampLayout sorts lexically in time order.
const TimestampLayout = "20060102_150405"

// SummaryKey is the Files key of the summary artifact.
const SummaryKey = "summary"

// ArtifactError reports one output file that could not be produced.
type ArtifactError struct {
	Format string
	Path   string
	Err    error
}

func (e ArtifactError) Error() string {
	return fmt.Sprintf("%s artifact %s: %v", e.Format, e.Path, e.Err)
}

func (e ArtifactError) Unwrap() error {
	return e.Err
}

// PersistenceError lists every artifact of a run that failed.
type PersistenceError struct {
	Artifacts []ArtifactError
}

func (e *PersistenceError) Error() string {
	parts := make([]string, 0, len(e.Artifacts))
	for _, a := range e.Artifacts {
		parts = append(parts, a.Error())
	}
	return "persistence: " + strings.Join(parts, "; ")
}

func (e *PersistenceError) Unwrap() []error {
	out := make([]error, 0, len(e.Artifacts))
	for _, a := range e.Artifacts {
		out = append(out, a)
	}
	return out
}

// RunInfo names a run's artifacts.
type RunInfo struct {
	Site     string
	Label    string
	Source   string
	Terminal models.Terminal
}

// Persister writes one run's records in every configured format plus a summary file.
type Persister struct {
	dir       string
	formats   []string
	batchSize int
	now       func() time.Time
}

// NewPersister builds a persister writing to cfg.OutputDir.
func NewPersister(cfg *config.Config) *Persister {
	return &Persister{
		dir:       cfg.OutputDir,
		formats:   cfg.Formats,
		batchSize: 64,
		now:       time.Now,
	}
}

// Persist writes products and their summary. Every format is attempted even when an
// earlier one fails. The summary is returned whenever it could be computed; the error is
// a *PersistenceError listing the artifacts that failed.
func (ps *Persister) Persist(run RunInfo, products []*models.Product) (*models.RunSummary, error) {
	at := ps.now()
	ts := at.Format(TimestampLayout)
	label := config.SafeLabel(run.Label)
	site := config.SafeLabel(run.Site)

	mw := NewMultiWriter()
	var failures []ArtifactError
	for _, format := range ps.formats {
		path := filepath.Join(ps.dir, fmt.Sprintf("%s_%s_%s.%s", site, label, ts, format))
		w, err := NewWriter(format, path)
		if err != nil {
			failures = append(failures, ArtifactError{Format: format, Path: path, Err: err})
			continue
		}
		mw.Add(format, path, w)
	}

	p := NewPipeline(mw, ps.batchSize)
	if err := p.Process(products...); err != nil {
		slog.Debug("pipeline write error", slog.Any("error", err))
	}
	if err := p.Close(); err != nil {
		slog.Debug("pipeline close error", slog.Any("error", err))
	}
	_ = mw.Validate()
	failures = append(failures, mw.Failures()...)

	files := mw.Files()
	summaryPath := filepath.Join(ps.dir, fmt.Sprintf("summary_%s_%s.json", label, ts))
	files[SummaryKey] = summaryPath
	summary := Summarize(run.Label, run.Source, p.Records(), run.Terminal, files, at)

	if err := WriteSummary(summaryPath, summary); err != nil {
		delete(summary.Files, SummaryKey)
		failures = append(failures, ArtifactError{Format: SummaryKey, Path: summaryPath, Err: err})
	}

	metrics := p.GetMetrics()
	slog.Info("results saved",
		slog.Any("files", summary.Files),
		slog.Any("processed", metrics["processed_products"]),
		slog.Any("validation_errors", metrics["validation_errors"]),
	)

	if len(failures) > 0 {
		return summary, &PersistenceError{Artifacts: failures}
	}
	return summary, nil
}
