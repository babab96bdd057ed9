// Package parser normalizes raw listing text into typed values.
package parser

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-listings/models"
)

// ParsePrice keeps only the ASCII digits of text and parses them. It never fails:
// text without digits yields 0.
func ParsePrice(text string) int {
	var digits strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil || n < 0 {
		// overflow
		return 0
	}
	return n
}

// ParseRating reads a star rating written as plain decimal text such as "4.5".
// Signs, exponents, hex floats, NaN, Inf and values outside [0,5] are reported as not ok.
func ParseRating(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if !isPlainDecimal(text) {
		return 0, false
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 5 {
		return 0, false
	}
	return v, true
}

// isPlainDecimal accepts ASCII digits with at most one decimal point.
func isPlainDecimal(text string) bool {
	digits, dots := 0, 0
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}

// ParseReviewCount reads counts shaped like "(1,234)".
func ParseReviewCount(text string) (int, bool) {
	cleaned := strings.NewReplacer("(", "", ")", "", ",", "").Replace(strings.TrimSpace(text))
	if cleaned == "" {
		return 0, false
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ResolveURL makes href absolute against base. Absolute hrefs are returned as is.
func ResolveURL(base, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("empty href")
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}

// NormalizeText trims and collapses internal whitespace.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ValidateProduct ensures an ok record is internally consistent.
func ValidateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if strings.TrimSpace(p.URL) == "" {
		return fmt.Errorf("product missing url")
	}
	if p.Failed() {
		return nil
	}
	if p.Price < 0 || p.OriginalPrice < 0 {
		return fmt.Errorf("negative price for %s", p.URL)
	}
	if p.OriginalPrice < p.Price {
		return fmt.Errorf("original price %d below price %d for %s", p.OriginalPrice, p.Price, p.URL)
	}
	if math.IsNaN(p.Rating) || math.IsInf(p.Rating, 0) || p.Rating < 0 || p.Rating > 5 {
		return fmt.Errorf("rating %v out of range for %s", p.Rating, p.URL)
	}
	if p.ReviewCount < 0 {
		return fmt.Errorf("negative review count for %s", p.URL)
	}
	return nil
}
