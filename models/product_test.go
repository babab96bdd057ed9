package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestComputeDiscount(t *testing.T) {
	tests := []struct {
		name     string
		price    int
		original int
		want     float64
	}{
		{name: "twenty percent", price: 8000, original: 10000, want: 20.0},
		{name: "equal prices", price: 10000, original: 10000, want: 0},
		{name: "original below price", price: 10000, original: 9000, want: 0},
		{name: "zero original", price: 0, original: 0, want: 0},
		{name: "rounds to one decimal", price: 2, original: 3, want: 33.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeDiscount(tt.price, tt.original); got != tt.want {
				t.Fatalf("ComputeDiscount(%d, %d) = %v, want %v", tt.price, tt.original, got, tt.want)
			}
		})
	}
}

func TestProductMarshalIncludesDiscount(t *testing.T) {
	p := Product{Name: "Shoe", Price: 8000, OriginalPrice: 10000, URL: "https://shop.test/p/1", Status: StatusOK}
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["discount_rate"] != 20.0 {
		t.Fatalf("discount_rate = %v, want 20", decoded["discount_rate"])
	}
	if decoded["url"] != p.URL {
		t.Fatalf("url = %v, want %s", decoded["url"], p.URL)
	}
}

func TestNewFailedProduct(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := NewFailedProduct("https://shop.test/p/9", 2, 7, "search:shop", errors.New("no name"), at)

	if !p.Failed() {
		t.Fatalf("expected failed record")
	}
	if p.URL != "https://shop.test/p/9" || p.PageIndex != 2 || p.Position != 7 {
		t.Fatalf("identity fields not preserved: %+v", p)
	}
	if p.Price != 0 || p.OriginalPrice != 0 || p.Name != FailedName {
		t.Fatalf("expected sentinel fields, got %+v", p)
	}
	if p.Error != "no name" {
		t.Fatalf("error = %q, want %q", p.Error, "no name")
	}
}
