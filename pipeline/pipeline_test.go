package pipeline

import (
	"errors"
	"math"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-listings/models"
)

type mockWriter struct {
	mu          sync.Mutex
	batches     [][]*models.Product
	closed      bool
	writeErr    error
	validateErr error
}

func (mw *mockWriter) Write(products []*models.Product) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.writeErr != nil {
		return mw.writeErr
	}
	copyBatch := make([]*models.Product, len(products))
	copy(copyBatch, products)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func (mw *mockWriter) totalWritten() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	total := 0
	for _, batch := range mw.batches {
		total += len(batch)
	}
	return total
}

func (mw *mockWriter) batchSizes() []int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	sizes := make([]int, 0, len(mw.batches))
	for _, batch := range mw.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

func TestPipelineBatchesRecords(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer, 2)

	for i := 0; i < 5; i++ {
		if err := p.Process(testProduct("https://shop.test/p/"+strconv.Itoa(i), 1000, 1000)); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if !writer.closed {
		t.Fatalf("writer should be closed")
	}
	if writer.totalWritten() != 5 {
		t.Fatalf("expected 5 records written, got %d", writer.totalWritten())
	}
	sizes := writer.batchSizes()
	if len(sizes) != 3 || sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Fatalf("unexpected batch sizes %v", sizes)
	}
	if got := p.GetMetrics()["processed_products"]; got != int64(5) {
		t.Fatalf("expected processed_products 5, got %v", got)
	}
}

func TestPipelineMarksInvalidRecordsFailed(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer, 10)

	bad := testProduct("https://shop.test/p/bad", 9000, 5000)
	noURL := testProduct("", 1000, 1000)
	if err := p.Process(bad, noURL, nil); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	records := p.Records()
	if len(records) != 1 {
		t.Fatalf("expected only the record with a url to be kept, got %d", len(records))
	}
	if !records[0].Failed() || records[0].Error == "" {
		t.Fatalf("invalid record should be marked failed with a reason: %+v", records[0])
	}
	if bad.Failed() {
		t.Fatalf("caller's record must not be mutated")
	}

	validation := p.GetMetrics()["validation_errors"].(map[string]int)
	if validation["invalid_record"] != 2 || validation["nil_record"] != 1 {
		t.Fatalf("unexpected validation counters %v", validation)
	}
	if got := p.GetMetrics()["failed_products"]; got != int64(1) {
		t.Fatalf("expected failed_products 1, got %v", got)
	}
}

func TestPipelineKeepsFailedRecords(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer, 10)

	failed := models.NewFailedProduct("https://shop.test/p/9", 1, 4, "search:coupang", errors.New("no price"), time.Date(2025, 11, 4, 13, 9, 13, 0, time.UTC))
	if err := p.Process(failed); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if writer.totalWritten() != 1 {
		t.Fatalf("failed record should still be written")
	}
}

func TestPipelineWriteErrorIsReported(t *testing.T) {
	writer := &mockWriter{writeErr: errors.New("disk full")}
	p := NewPipeline(writer, 1)

	err := p.Process(testProduct("https://shop.test/p/1", 1, 1), testProduct("https://shop.test/p/2", 1, 1))
	if err == nil {
		t.Fatalf("expected write error")
	}
	if p.Err() == nil {
		t.Fatalf("pipeline should remember the first error")
	}
	if len(p.Records()) != 2 {
		t.Fatalf("processing should continue after a write error")
	}
	_ = p.Close()
}

func TestPipelineProcessAfterClose(t *testing.T) {
	p := NewPipeline(&mockWriter{}, 1)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Process(testProduct("https://shop.test/p/1", 1, 1)); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("expected ErrPipelineClosed, got %v", err)
	}
}

func TestMultiWriterSkipsFailedWriter(t *testing.T) {
	good := &mockWriter{}
	bad := &mockWriter{writeErr: errors.New("boom")}

	mw := NewMultiWriter()
	mw.Add("csv", "a.csv", good)
	mw.Add("json", "a.json", bad)

	if err := mw.Write([]*models.Product{testProduct("https://shop.test/p/1", 1, 1)}); err == nil {
		t.Fatalf("expected error from failing writer")
	}
	if err := mw.Write([]*models.Product{testProduct("https://shop.test/p/2", 1, 1)}); err != nil {
		t.Fatalf("failed writer should be skipped afterwards: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if good.totalWritten() != 2 {
		t.Fatalf("healthy writer should receive every batch, got %d", good.totalWritten())
	}
	files := mw.Files()
	if _, ok := files["json"]; ok {
		t.Fatalf("failed format must not be listed: %v", files)
	}
	if files["csv"] != "a.csv" {
		t.Fatalf("unexpected files %v", files)
	}
	failures := mw.Failures()
	if len(failures) != 1 || failures[0].Format != "json" {
		t.Fatalf("unexpected failures %+v", failures)
	}
}

func TestPipelineNonFiniteRatingIsCleared(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer, 10)

	odd := testProduct("https://shop.test/p/nan", 1000, 1000)
	odd.Rating = math.NaN()
	if err := p.Process(odd); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	records := p.Records()
	if len(records) != 1 || !records[0].Failed() || records[0].Rating != 0 {
		t.Fatalf("non-finite rating should be marked failed and cleared, got %+v", records)
	}
}
