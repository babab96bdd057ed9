package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aluiziolira/go-scrape-listings/browser"
	"github.com/aluiziolira/go-scrape-listings/config"
	"github.com/aluiziolira/go-scrape-listings/models"
	"github.com/aluiziolira/go-scrape-listings/parser"
)

// UnknownName replaces a missing product name.
const UnknownName = "unknown"

// querier is satisfied by both pages and elements.
type querier interface {
	Query(ctx context.Context, selector string) (browser.Element, bool, error)
}

// field is the outcome of one selector lookup: a value, or absent.
type field struct {
	value string
	ok    bool
}

func (f field) or(fallback string) string {
	if !f.ok {
		return fallback
	}
	return f.value
}

type fieldKey int

const (
	fieldName fieldKey = iota
	fieldPrice
	fieldOriginalPrice
	fieldLink
	fieldImage
	fieldRating
	fieldReviewCount
	fieldExpressBadge
)

// fieldRule maps a record field to its selector. attr empty reads the text content.
// Lookup errors on fatal rules fail the whole item; absence never does.
type fieldRule struct {
	key      fieldKey
	label    string
	selector string
	attr     string
	fatal    bool
}

func searchRules(s config.SearchSelectors) []fieldRule {
	return []fieldRule{
		{key: fieldName, label: "name", selector: s.Name, fatal: true},
		{key: fieldPrice, label: "price", selector: s.Price, fatal: true},
		{key: fieldOriginalPrice, label: "original_price", selector: s.OriginalPrice},
		{key: fieldLink, label: "url", selector: s.Link, attr: "href", fatal: true},
		{key: fieldImage, label: "image_url", selector: s.Image, attr: "src"},
		{key: fieldRating, label: "rating", selector: s.Rating},
		{key: fieldReviewCount, label: "review_count", selector: s.ReviewCount},
		{key: fieldExpressBadge, label: "shipping_label", selector: s.ExpressBadge},
	}
}

func detailRules(s config.DetailSelectors) []fieldRule {
	return []fieldRule{
		{key: fieldName, label: "name", selector: s.Name, fatal: true},
		{key: fieldPrice, label: "price", selector: s.Price, fatal: true},
	}
}

func lookup(ctx context.Context, root querier, rule fieldRule) (field, error) {
	if rule.selector == "" {
		return field{}, nil
	}
	el, ok, err := root.Query(ctx, rule.selector)
	if err != nil {
		return field{}, err
	}
	if !ok {
		return field{}, nil
	}
	if rule.attr == "" {
		text, err := el.Text(ctx)
		if err != nil {
			return field{}, err
		}
		return field{value: text, ok: true}, nil
	}
	value, ok, err := el.Attribute(ctx, rule.attr)
	if err != nil {
		return field{}, err
	}
	return field{value: value, ok: ok}, nil
}

// Extractor turns result containers into records.
type Extractor struct {
	rules   []fieldRule
	baseURL string
	source  string
	now     func() time.Time
}

// NewExtractor builds an extractor for search result containers.
func NewExtractor(cfg *config.Config) *Extractor {
	return &Extractor{
		rules:   searchRules(cfg.Search),
		baseURL: cfg.BaseURL,
		source:  "search:" + cfg.SiteName,
		now:     time.Now,
	}
}

// Extract reads one container. It always returns a record: complete, with field defaults,
// or marked failed. The error joins every ItemError met along the way and is for logging.
// slotURL keys the failed record when the item has no usable link.
func (x *Extractor) Extract(ctx context.Context, el browser.Element, page, position int, slotURL string) (*models.Product, error) {
	fields := make(map[fieldKey]field, len(x.rules))
	var issues []error
	var fatal error

	for _, rule := range x.rules {
		f, err := lookup(ctx, el, rule)
		if err != nil {
			itemErr := ItemError{Page: page, Position: position, Field: rule.label, Err: err}
			issues = append(issues, itemErr)
			if rule.fatal && fatal == nil {
				fatal = itemErr
			}
			continue
		}
		if !f.ok && rule.fatal {
			issues = append(issues, ItemError{Page: page, Position: position, Field: rule.label, Err: errFieldMissing})
		}
		fields[rule.key] = f
	}

	productURL, urlErr := parser.ResolveURL(x.baseURL, fields[fieldLink].value)
	if urlErr != nil && fatal == nil {
		fatal = ItemError{Page: page, Position: position, Field: "url", Err: urlErr}
	}
	if fatal != nil {
		key := productURL
		if urlErr != nil {
			key = slotURL
		}
		return models.NewFailedProduct(key, page, position, x.source, fatal, x.now()), errors.Join(issues...)
	}

	p := &models.Product{
		URL:       productURL,
		PageIndex: page,
		Position:  position,
		ScrapedAt: x.now(),
		Source:    x.source,
		Status:    models.StatusOK,
	}
	applySearchFields(p, fields, x.baseURL)
	return p, errors.Join(issues...)
}

// applySearchFields fills p from resolved lookups using the per-field defaults.
func applySearchFields(p *models.Product, fields map[fieldKey]field, baseURL string) {
	p.Name = parser.NormalizeText(fields[fieldName].value)
	if p.Name == "" {
		p.Name = UnknownName
	}

	p.Price = parser.ParsePrice(fields[fieldPrice].value)
	p.OriginalPrice = p.Price
	if f := fields[fieldOriginalPrice]; f.ok {
		if original := parser.ParsePrice(f.value); original > p.Price {
			p.OriginalPrice = original
		}
	}

	if src := fields[fieldImage].or(""); src != "" {
		if abs, err := parser.ResolveURL(baseURL, src); err == nil {
			p.ImageURL = abs
		} else {
			p.ImageURL = src
		}
	}

	// rating and review count resolve together or not at all
	rating, ratingOK := parser.ParseRating(fields[fieldRating].value)
	reviews, reviewsOK := parser.ParseReviewCount(fields[fieldReviewCount].value)
	if fields[fieldRating].ok && fields[fieldReviewCount].ok && ratingOK && reviewsOK {
		p.Rating = rating
		p.ReviewCount = reviews
	}

	p.Shipping = models.ShippingStandard
	if fields[fieldExpressBadge].ok {
		p.Shipping = models.ShippingExpedited
	}
}

// DetailExtractor reads name and price from a product page.
type DetailExtractor struct {
	rules  []fieldRule
	source string
	now    func() time.Time
}

// NewDetailExtractor builds an extractor for product detail pages.
func NewDetailExtractor(cfg *config.Config) *DetailExtractor {
	return &DetailExtractor{
		rules:  detailRules(cfg.Detail),
		source: "track:" + cfg.SiteName,
		now:    time.Now,
	}
}

// Extract reads the current page of session as the record for productURL.
func (x *DetailExtractor) Extract(ctx context.Context, session browser.Session, productURL string, position int) (*models.Product, error) {
	fields := make(map[fieldKey]field, len(x.rules))
	for _, rule := range x.rules {
		f, err := lookup(ctx, session, rule)
		if err != nil {
			itemErr := ItemError{Page: 1, Position: position, Field: rule.label, Err: err}
			return models.NewFailedProduct(productURL, 1, position, x.source, itemErr, x.now()), itemErr
		}
		fields[rule.key] = f
	}

	if !fields[fieldPrice].ok {
		itemErr := ItemError{Page: 1, Position: position, Field: "price", Err: errFieldMissing}
		return models.NewFailedProduct(productURL, 1, position, x.source, itemErr, x.now()), itemErr
	}

	name := parser.NormalizeText(fields[fieldName].value)
	if name == "" {
		name = UnknownName
	}
	price := parser.ParsePrice(fields[fieldPrice].value)
	return &models.Product{
		Name:          name,
		Price:         price,
		OriginalPrice: price,
		URL:           productURL,
		Shipping:      models.ShippingStandard,
		PageIndex:     1,
		Position:      position,
		ScrapedAt:     x.now(),
		Source:        x.source,
		Status:        models.StatusOK,
	}, nil
}

// slotKey is the placeholder identity for an item whose link could not be read.
func slotKey(pageURL string, page, position int) string {
	return fmt.Sprintf("%s#slot-%d-%d", pageURL, page, position)
}
