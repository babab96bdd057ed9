package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-listings/models"
)

// Columns is the field order shared by every tabular artifact and the JSON records.
var Columns = []string{
	"name",
	"price",
	"original_price",
	"url",
	"image_url",
	"rating",
	"review_count",
	"shipping_label",
	"page_index",
	"position_in_page",
	"scraped_at",
	"source",
	"status",
	"error",
	"discount_rate",
}

// utf8BOM lets spreadsheet tools detect the encoding of CSV files.
const utf8BOM = "\ufeff"

func productRow(p *models.Product) []string {
	return []string{
		p.Name,
		strconv.Itoa(p.Price),
		strconv.Itoa(p.OriginalPrice),
		p.URL,
		p.ImageURL,
		strconv.FormatFloat(p.Rating, 'f', -1, 64),
		strconv.Itoa(p.ReviewCount),
		string(p.Shipping),
		strconv.Itoa(p.PageIndex),
		strconv.Itoa(p.Position),
		p.ScrapedAt.Format(time.RFC3339Nano),
		p.Source,
		string(p.Status),
		p.Error,
		strconv.FormatFloat(p.DiscountRate(), 'f', 1, 64),
	}
}

// headerIndex maps column names to their position in a header row.
func headerIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(strings.TrimSpace(name), utf8BOM)
		idx[name] = i
	}
	if _, ok := idx["url"]; !ok {
		return nil, fmt.Errorf("header has no url column")
	}
	return idx, nil
}

// parseRow decodes a row by column name. discount_rate is derived and therefore ignored.
func parseRow(idx map[string]int, row []string) (*models.Product, error) {
	get := func(col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}
	atoi := func(col string) (int, error) {
		v := get(col)
		if v == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("column %s: %w", col, err)
		}
		return n, nil
	}

	p := &models.Product{
		Name:     get("name"),
		URL:      get("url"),
		ImageURL: get("image_url"),
		Shipping: models.ShippingLabel(get("shipping_label")),
		Source:   get("source"),
		Status:   models.Status(get("status")),
		Error:    get("error"),
	}
	if p.URL == "" {
		return nil, fmt.Errorf("row has empty url")
	}
	var err error
	if p.Price, err = atoi("price"); err != nil {
		return nil, err
	}
	if p.OriginalPrice, err = atoi("original_price"); err != nil {
		return nil, err
	}
	if p.ReviewCount, err = atoi("review_count"); err != nil {
		return nil, err
	}
	if p.PageIndex, err = atoi("page_index"); err != nil {
		return nil, err
	}
	if p.Position, err = atoi("position_in_page"); err != nil {
		return nil, err
	}
	if v := get("rating"); v != "" {
		if p.Rating, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("column rating: %w", err)
		}
	}
	if v := get("scraped_at"); v != "" {
		if p.ScrapedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("column scraped_at: %w", err)
		}
	}
	if p.Shipping == "" {
		p.Shipping = models.ShippingStandard
	}
	if p.Status == "" {
		p.Status = models.StatusOK
	}
	return p, nil
}
