package pipeline

import (
	"testing"

	"github.com/aluiziolira/go-scrape-listings/models"
)

func TestMergeFreshWins(t *testing.T) {
	old := []*models.Product{
		testProduct("https://shop.test/p/a", 100, 100),
		testProduct("https://shop.test/p/b", 200, 200),
	}
	fresh := []*models.Product{
		testProduct("https://shop.test/p/a", 90, 100),
		testProduct("https://shop.test/p/c", 300, 300),
	}

	merged := Merge(old, fresh)
	if len(merged) != 3 {
		t.Fatalf("expected 3 records, got %d", len(merged))
	}
	prices := map[string]int{}
	for _, p := range merged {
		prices[p.URL] = p.Price
	}
	if prices["https://shop.test/p/a"] != 90 {
		t.Fatalf("fresh record should replace old one, got %d", prices["https://shop.test/p/a"])
	}
	if prices["https://shop.test/p/b"] != 200 {
		t.Fatalf("old-only record should be retained")
	}
	for i := 1; i < len(merged); i++ {
		if merged[i-1].URL >= merged[i].URL {
			t.Fatalf("result should be sorted by url")
		}
	}
}

func TestMergeIdempotent(t *testing.T) {
	old := []*models.Product{testProduct("https://shop.test/p/a", 100, 100)}
	fresh := []*models.Product{
		testProduct("https://shop.test/p/a", 90, 100),
		testProduct("https://shop.test/p/b", 50, 50),
	}

	once := Merge(old, fresh)
	twice := Merge(once, fresh)
	if len(once) != len(twice) {
		t.Fatalf("merging twice changed size: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].URL != twice[i].URL || once[i].Price != twice[i].Price {
			t.Fatalf("merging twice changed record %d", i)
		}
	}
}

func TestMergeLastFreshDuplicateWins(t *testing.T) {
	fresh := []*models.Product{
		testProduct("https://shop.test/p/a", 100, 100),
		nil,
		testProduct("", 1, 1),
		testProduct("https://shop.test/p/a", 80, 100),
	}
	merged := Merge(nil, fresh)
	if len(merged) != 1 || merged[0].Price != 80 {
		t.Fatalf("expected single record priced 80, got %+v", merged)
	}
}
