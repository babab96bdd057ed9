// Package models defines data structures for the scraper.
package models

import (
	"encoding/json"
	"math"
	"time"
)

// ShippingLabel is the delivery tier advertised on a listing.
type ShippingLabel string

const (
	ShippingStandard  ShippingLabel = "standard"
	ShippingExpedited ShippingLabel = "expedited"
)

// Status marks whether a record was fully extracted.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// FailedName is the sentinel name written on failed records.
const FailedName = "extraction failed"

// Product represents one scraped listing or detail-page item. URL is its identity.
type Product struct {
	Name          string        `json:"name"`
	Price         int           `json:"price"`
	OriginalPrice int           `json:"original_price"`
	URL           string        `json:"url"`
	ImageURL      string        `json:"image_url"`
	Rating        float64       `json:"rating"`
	ReviewCount   int           `json:"review_count"`
	Shipping      ShippingLabel `json:"shipping_label"`
	PageIndex     int           `json:"page_index"`
	Position      int           `json:"position_in_page"`
	ScrapedAt     time.Time     `json:"scraped_at"`
	Source        string        `json:"source"`
	Status        Status        `json:"status"`
	Error         string        `json:"error,omitempty"`
}

// DiscountRate returns the percentage off OriginalPrice, rounded to one decimal.
// It is zero unless OriginalPrice exceeds Price.
func (p *Product) DiscountRate() float64 {
	return ComputeDiscount(p.Price, p.OriginalPrice)
}

// Failed reports whether the record carries the failure marker.
func (p *Product) Failed() bool {
	return p.Status == StatusFailed
}

// ComputeDiscount is the discount formula shared by records and summaries.
func ComputeDiscount(price, original int) float64 {
	if original <= price || original <= 0 {
		return 0
	}
	rate := float64(original-price) / float64(original) * 100
	return math.Round(rate*10) / 10
}

// NewFailedProduct builds the placeholder kept for an item that could not be extracted.
func NewFailedProduct(url string, page, position int, source string, reason error, at time.Time) *Product {
	p := &Product{
		Name:      FailedName,
		URL:       url,
		Shipping:  ShippingStandard,
		PageIndex: page,
		Position:  position,
		ScrapedAt: at,
		Source:    source,
		Status:    StatusFailed,
	}
	if reason != nil {
		p.Error = reason.Error()
	}
	return p
}

// Terminal is the final state of a crawl.
type Terminal string

const (
	TerminalDone       Terminal = "done"
	TerminalPageFailed Terminal = "page_failed"
)

// CrawlResult holds the overall result of a crawl. Products is owned by the caller.
type CrawlResult struct {
	Products       []*Product
	Terminal       Terminal
	FailedPage     int
	PagesAttempted int
	ItemErrors     int
	Duplicates     int
	RetryCount     int
	StartTime      time.Time
	EndTime        time.Time
}

// StoppedEarly reports whether pagination was aborted before the last page.
func (r *CrawlResult) StoppedEarly() bool {
	return r.Terminal == TerminalPageFailed
}

// RunSummary aggregates one run's record set. It is not modified after construction.
type RunSummary struct {
	Label       string            `json:"keyword"`
	Source      string            `json:"source"`
	TotalCount  int               `json:"total_products"`
	PricedCount int               `json:"priced_products"`
	FailedCount int               `json:"failed_products"`
	AvgPrice    int               `json:"avg_price"`
	MinPrice    int               `json:"min_price"`
	MaxPrice    int               `json:"max_price"`
	Terminal    Terminal          `json:"terminal"`
	ScrapedAt   time.Time         `json:"scraped_at"`
	Files       map[string]string `json:"files"`
}

// MarshalJSON writes the derived discount rate next to the stored fields.
func (p Product) MarshalJSON() ([]byte, error) {
	type plain Product
	return json.Marshal(struct {
		plain
		DiscountRate float64 `json:"discount_rate"`
	}{plain(p), p.DiscountRate()})
}
