package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/aluiziolira/go-scrape-listings/browser"
	"github.com/aluiziolira/go-scrape-listings/pipeline"
)

// ErrSetup indicates the browser session could not be created. The run aborts.
type ErrSetup struct {
	Err error
}

func (e ErrSetup) Error() string {
	return fmt.Errorf("setup: %w", e.Err).Error()
}

func (e ErrSetup) Unwrap() error {
	return e.Err
}

// ErrPageLoad indicates a result page never showed its containers. Pagination stops.
type ErrPageLoad struct {
	Page int
	URL  string
	Err  error
}

func (e ErrPageLoad) Error() string {
	return fmt.Errorf("page_load: page %d (%s): %w", e.Page, e.URL, e.Err).Error()
}

func (e ErrPageLoad) Unwrap() error {
	return e.Err
}

// ItemError describes one field that could not be read from an item.
type ItemError struct {
	Page     int
	Position int
	Field    string
	Err      error
}

func (e ItemError) Error() string {
	return fmt.Errorf("item: page %d position %d field %s: %w", e.Page, e.Position, e.Field, e.Err).Error()
}

func (e ItemError) Unwrap() error {
	return e.Err
}

var errFieldMissing = errors.New("selector missing")

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var setup ErrSetup
	if errors.As(err, &setup) {
		return "setup"
	}
	var persistence *pipeline.PersistenceError
	if errors.As(err, &persistence) {
		return "persistence"
	}
	if errors.Is(err, browser.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var pageLoad ErrPageLoad
	if errors.As(err, &pageLoad) {
		return "page_load"
	}
	var item ItemError
	if errors.As(err, &item) {
		if errors.Is(item.Err, errFieldMissing) {
			return "selector_missing"
		}
		return "item"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "other"
}
