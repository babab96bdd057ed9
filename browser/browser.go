// Package browser wraps page automation behind the narrow interface the crawler needs.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/aluiziolira/go-scrape-listings/config"
)

var (
	// ErrTimeout is returned when navigation or a selector wait exceeds its budget.
	ErrTimeout = errors.New("browser: timeout")
	// ErrClosed is returned by sessions used after Close.
	ErrClosed = errors.New("browser: session closed")
)

// Element is a handle to one node of the current document.
type Element interface {
	// Query returns the first descendant matching selector; ok is false when there is none.
	Query(ctx context.Context, selector string) (el Element, ok bool, err error)
	Text(ctx context.Context) (string, error)
	// Attribute returns the attribute value; ok is false when the attribute is absent.
	Attribute(ctx context.Context, name string) (value string, ok bool, err error)
}

// Session is a single browser tab. It is not safe for concurrent use.
type Session interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	Query(ctx context.Context, selector string) (el Element, ok bool, err error)
	ScrollToBottom(ctx context.Context) error
	PageHeight(ctx context.Context) (int, error)
	Close() error
}

// Opener creates a session. Callers own the returned session and must Close it.
type Opener func(ctx context.Context) (Session, error)

// NewOpener picks the backend named by cfg.Engine.
func NewOpener(cfg *config.Config) (Opener, error) {
	switch cfg.Engine {
	case config.EngineRod:
		opts := RodOptions{
			Headless:  cfg.Headless,
			Stealth:   cfg.Stealth,
			Bin:       cfg.BrowserBin,
			UserAgent: cfg.UserAgent,
		}
		return func(ctx context.Context) (Session, error) {
			return OpenRod(ctx, opts)
		}, nil
	case config.EngineStatic:
		opts := StaticOptions{
			UserAgent: cfg.UserAgent,
		}
		return func(ctx context.Context) (Session, error) {
			return NewStaticSession(opts), nil
		}, nil
	default:
		return nil, fmt.Errorf("unsupported engine: %s", cfg.Engine)
	}
}

// asTimeout rewrites deadline-style failures to ErrTimeout so callers can match one sentinel.
func asTimeout(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, what, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, what, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}
