package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aluiziolira/go-scrape-listings/models"
)

// Summarize computes run aggregates over records that were priced successfully.
// With no such records every price aggregate is 0.
func Summarize(label, source string, products []*models.Product, terminal models.Terminal, files map[string]string, at time.Time) *models.RunSummary {
	summary := &models.RunSummary{
		Label:      label,
		Source:     source,
		TotalCount: len(products),
		Terminal:   terminal,
		ScrapedAt:  at,
		Files:      make(map[string]string, len(files)),
	}
	for k, v := range files {
		summary.Files[k] = v
	}

	var sum int64
	for _, p := range products {
		if p == nil {
			continue
		}
		if p.Failed() {
			summary.FailedCount++
			continue
		}
		if p.Price <= 0 {
			continue
		}
		if summary.PricedCount == 0 || p.Price < summary.MinPrice {
			summary.MinPrice = p.Price
		}
		if p.Price > summary.MaxPrice {
			summary.MaxPrice = p.Price
		}
		sum += int64(p.Price)
		summary.PricedCount++
	}
	if summary.PricedCount > 0 {
		summary.AvgPrice = int(sum / int64(summary.PricedCount))
	}
	return summary
}

// WriteSummary writes summary as indented JSON.
func WriteSummary(filename string, summary *models.RunSummary) error {
	if err := ensureDir(filename); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := os.WriteFile(filename, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
