package pipeline

import (
	"sort"

	"github.com/aluiziolira/go-scrape-listings/models"
)

// Merge unions old and fresh by URL. A fresh record replaces an old one with the same URL,
// old-only records are kept unchanged, and within fresh the last record for a URL wins.
// The result is sorted by URL. Merging the same fresh batch again changes nothing.
func Merge(old, fresh []*models.Product) []*models.Product {
	byURL := make(map[string]*models.Product, len(old)+len(fresh))
	for _, p := range old {
		if p != nil && p.URL != "" {
			byURL[p.URL] = p
		}
	}
	for _, p := range fresh {
		if p != nil && p.URL != "" {
			byURL[p.URL] = p
		}
	}

	out := make([]*models.Product, 0, len(byURL))
	for _, p := range byURL {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].URL < out[j].URL
	})
	return out
}
