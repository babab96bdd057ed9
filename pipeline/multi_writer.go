package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-listings/models"
)

type namedWriter struct {
	format string
	path   string
	writer OutputWriter
	failed bool
}

// MultiWriter fans records out to one writer per format. A failing writer is dropped
// from later writes while the others carry on; every failure is reported once.
type MultiWriter struct {
	writers  []*namedWriter
	failures []ArtifactError
	mu       sync.Mutex
}

// NewMultiWriter creates an empty fan-out writer.
func NewMultiWriter() *MultiWriter {
	return &MultiWriter{}
}

// Add registers a writer for format stored at path.
func (mw *MultiWriter) Add(format, path string, w OutputWriter) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.writers = append(mw.writers, &namedWriter{format: format, path: path, writer: w})
}

// Write writes products to every healthy writer.
func (mw *MultiWriter) Write(products []*models.Product) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for _, nw := range mw.writers {
		if nw.failed {
			continue
		}
		if err := nw.writer.Write(products); err != nil {
			errs = append(errs, mw.failLocked(nw, fmt.Errorf("write: %w", err)))
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer, including ones that failed earlier.
func (mw *MultiWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for _, nw := range mw.writers {
		if err := nw.writer.Close(); err != nil && !nw.failed {
			errs = append(errs, mw.failLocked(nw, fmt.Errorf("close: %w", err)))
		}
	}
	return errors.Join(errs...)
}

// Validate validates every writer that has not failed.
func (mw *MultiWriter) Validate() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for _, nw := range mw.writers {
		if nw.failed {
			continue
		}
		if err := nw.writer.Validate(); err != nil {
			errs = append(errs, mw.failLocked(nw, fmt.Errorf("validate: %w", err)))
		}
	}
	return errors.Join(errs...)
}

// Files returns the artifacts that were written without error, keyed by format.
func (mw *MultiWriter) Files() map[string]string {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	files := make(map[string]string, len(mw.writers))
	for _, nw := range mw.writers {
		if !nw.failed {
			files[nw.format] = nw.path
		}
	}
	return files
}

// Failures returns every artifact error recorded so far.
func (mw *MultiWriter) Failures() []ArtifactError {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	out := make([]ArtifactError, len(mw.failures))
	copy(out, mw.failures)
	return out
}

func (mw *MultiWriter) failLocked(nw *namedWriter, err error) error {
	nw.failed = true
	artifact := ArtifactError{Format: nw.format, Path: nw.path, Err: err}
	mw.failures = append(mw.failures, artifact)
	return artifact
}
