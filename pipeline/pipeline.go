// Package pipeline validates, reconciles and persists scraped records.
package pipeline

import (
	"errors"
	"fmt"
	"math"

	"github.com/aluiziolira/go-scrape-listings/models"
	"github.com/aluiziolira/go-scrape-listings/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after Close.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(products []*models.Product) error
	Close() error
	Validate() error
}

// Pipeline validates records and writes them to an OutputWriter in batches.
// It runs on the caller's goroutine; a run owns its pipeline.
type Pipeline struct {
	writer    OutputWriter
	batchSize int
	batch     []*models.Product
	records   []*models.Product

	metrics metrics

	closed bool
	err    error
}

// NewPipeline builds a pipeline flushing every batchSize records.
func NewPipeline(writer OutputWriter, batchSize int) *Pipeline {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Pipeline{
		writer:    writer,
		batchSize: batchSize,
		batch:     make([]*models.Product, 0, batchSize),
		metrics:   newMetrics(),
	}
}

// Process validates products and queues them for writing.
// Invalid records are kept, marked failed, never dropped.
func (p *Pipeline) Process(products ...*models.Product) error {
	if p.closed {
		return ErrPipelineClosed
	}
	var errs []error
	for _, product := range products {
		prepared := p.prepare(product)
		if prepared == nil {
			continue
		}
		p.batch = append(p.batch, prepared)
		p.records = append(p.records, prepared)
		if len(p.batch) >= p.batchSize {
			// keep going: a multi-format writer may still have healthy outputs
			if err := p.flush(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close flushes pending records and closes the writer. Both steps are attempted.
func (p *Pipeline) Close() error {
	if p.closed {
		return p.err
	}
	p.closed = true

	flushErr := p.flush()
	closeErr := p.writer.Close()
	if closeErr != nil {
		closeErr = fmt.Errorf("close writer: %w", closeErr)
	}
	if err := errors.Join(flushErr, closeErr); err != nil && p.err == nil {
		p.err = err
	}
	return p.err
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	return p.err
}

// Records returns every record accepted so far, as written.
func (p *Pipeline) Records() []*models.Product {
	out := make([]*models.Product, len(p.records))
	copy(out, p.records)
	return out
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

func (p *Pipeline) flush() error {
	if len(p.batch) == 0 {
		return nil
	}
	err := p.writer.Write(p.batch)
	p.batch = p.batch[:0]
	if err != nil {
		err = fmt.Errorf("write batch: %w", err)
		if p.err == nil {
			p.err = err
		}
		return err
	}
	return nil
}

func (p *Pipeline) prepare(product *models.Product) *models.Product {
	prepared, issue := prepareRecord(product)
	if issue != "" {
		p.metrics.addValidation(issue)
	}
	if prepared == nil {
		return nil
	}
	if prepared.Failed() {
		p.metrics.incrementFailed()
	}
	p.metrics.incrementProcessed()
	return prepared
}

// Prepare validates products the same way Process does and returns the records that would
// be written. Feeding its output back in returns the same records.
func Prepare(products []*models.Product) []*models.Product {
	out := make([]*models.Product, 0, len(products))
	for _, product := range products {
		if prepared, _ := prepareRecord(product); prepared != nil {
			out = append(out, prepared)
		}
	}
	return out
}

// prepareRecord returns the record to keep, or nil, plus the validation issue kind if any.
// An invalid record is copied and marked failed; the caller's record is left untouched.
func prepareRecord(product *models.Product) (*models.Product, string) {
	if product == nil {
		return nil, "nil_record"
	}
	err := parser.ValidateProduct(product)
	if err == nil {
		return product, ""
	}
	if product.URL == "" {
		return nil, "invalid_record"
	}
	failed := *product
	failed.Status = models.StatusFailed
	failed.Error = err.Error()
	if math.IsNaN(failed.Rating) || math.IsInf(failed.Rating, 0) {
		failed.Rating = 0
	}
	return &failed, "invalid_record"
}

type metrics struct {
	processed  int64
	failed     int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.processed++
}

func (m *metrics) incrementFailed() {
	m.failed++
}

func (m *metrics) addValidation(kind string) {
	m.validation[kind]++
}

func (m *metrics) snapshot() map[string]interface{} {
	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_products": m.processed,
		"failed_products":    m.failed,
		"validation_errors":  copyValidation,
	}
}
