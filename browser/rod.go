package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const (
	scrollScript = `() => window.scrollTo(0, document.body.scrollHeight)`
	heightScript = `() => document.body.scrollHeight`
)

// RodOptions configures the headless Chromium launch.
type RodOptions struct {
	Headless  bool
	Stealth   bool
	Bin       string
	UserAgent string
}

// RodSession drives one Chromium tab through the DevTools protocol.
type RodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	closed   bool
}

// OpenRod launches a browser and opens a single page.
func OpenRod(ctx context.Context, opts RodOptions) (*RodSession, error) {
	l := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		NoSandbox(true).
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("window-size", "1920,1080").
		Set("disable-blink-features", "AutomationControlled")
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	var page *rod.Page
	if opts.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("open page: %w", err)
	}

	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			slog.Warn("set user agent failed", slog.Any("error", err))
		}
	}

	slog.Debug("browser started", slog.Bool("headless", opts.Headless), slog.Bool("stealth", opts.Stealth))
	return &RodSession{launcher: l, browser: b, page: page}, nil
}

// Navigate loads url and waits for the load event.
func (s *RodSession) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if s.closed {
		return ErrClosed
	}
	p := s.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	if err := p.Navigate(url); err != nil {
		return asTimeout(err, "navigate "+url)
	}
	if err := p.WaitLoad(); err != nil {
		return asTimeout(err, "wait load "+url)
	}
	return nil
}

// WaitForSelector polls until selector matches or timeout elapses.
func (s *RodSession) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	if s.closed {
		return nil, ErrClosed
	}
	p := s.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	el, err := p.Element(selector)
	if err != nil {
		return nil, asTimeout(err, "wait for "+selector)
	}
	return &rodElement{el: el}, nil
}

// QueryAll returns every current match without waiting.
func (s *RodSession) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	if s.closed {
		return nil, ErrClosed
	}
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query all %s: %w", selector, err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}

// Query returns the first current match without waiting.
func (s *RodSession) Query(ctx context.Context, selector string) (Element, bool, error) {
	if s.closed {
		return nil, false, ErrClosed
	}
	ok, el, err := s.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, false, fmt.Errorf("query %s: %w", selector, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &rodElement{el: el}, true, nil
}

func (s *RodSession) ScrollToBottom(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if _, err := s.page.Context(ctx).Eval(scrollScript); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

func (s *RodSession) PageHeight(ctx context.Context) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	res, err := s.page.Context(ctx).Eval(heightScript)
	if err != nil {
		return 0, fmt.Errorf("measure height: %w", err)
	}
	return res.Value.Int(), nil
}

// Close shuts the page, the browser and the launched process. It is safe to call twice.
func (s *RodSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if err := s.page.Close(); err != nil {
		firstErr = fmt.Errorf("close page: %w", err)
	}
	if err := s.browser.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close browser: %w", err)
	}
	s.launcher.Kill()
	s.launcher.Cleanup()
	return firstErr
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Query(ctx context.Context, selector string) (Element, bool, error) {
	ok, child, err := e.el.Context(ctx).Has(selector)
	if err != nil {
		return nil, false, fmt.Errorf("query %s: %w", selector, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &rodElement{el: child}, true, nil
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, fmt.Errorf("attribute %s: %w", name, err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}
