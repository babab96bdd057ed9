package browser

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// StaticOptions configures a StaticSession.
type StaticOptions struct {
	UserAgent string
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// StaticSession fetches server-rendered HTML with colly and queries it with goquery.
// It executes no JavaScript, so scrolling never changes the document.
type StaticSession struct {
	collector *colly.Collector
	doc       *goquery.Document
	body      []byte
	lastErr   error
	closed    bool
}

// NewStaticSession builds a synchronous collector that keeps only the last response.
func NewStaticSession(opts StaticOptions) *StaticSession {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
	)
	if opts.UserAgent != "" {
		c.UserAgent = opts.UserAgent
	}
	c.IgnoreRobotsTxt = true
	if opts.Transport != nil {
		c.WithTransport(opts.Transport)
	}

	s := &StaticSession{collector: c}
	c.OnResponse(func(r *colly.Response) {
		s.body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		s.lastErr = fmt.Errorf("status %d: %w", status, err)
	})
	return s
}

// Navigate fetches url and parses the body.
func (s *StaticSession) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.doc, s.body, s.lastErr = nil, nil, nil
	s.collector.SetRequestTimeout(timeout)
	if err := s.collector.Visit(url); err != nil {
		return asTimeout(err, "navigate "+url)
	}
	if s.lastErr != nil {
		return asTimeout(s.lastErr, "navigate "+url)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(s.body))
	if err != nil {
		return fmt.Errorf("parse %s: %w", url, err)
	}
	s.doc = doc
	return nil
}

// WaitForSelector checks the loaded document once; a static page cannot grow later.
func (s *StaticSession) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.doc == nil {
		return nil, fmt.Errorf("wait for %s: no document loaded", selector)
	}
	sel := s.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: selector %q not present", ErrTimeout, selector)
	}
	return &staticElement{sel: sel}, nil
}

func (s *StaticSession) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.doc == nil {
		return nil, nil
	}
	var out []Element
	s.doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		out = append(out, &staticElement{sel: sel})
	})
	return out, nil
}

func (s *StaticSession) Query(ctx context.Context, selector string) (Element, bool, error) {
	if s.closed {
		return nil, false, ErrClosed
	}
	if s.doc == nil {
		return nil, false, nil
	}
	sel := s.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, false, nil
	}
	return &staticElement{sel: sel}, true, nil
}

func (s *StaticSession) ScrollToBottom(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

// PageHeight stands in the body size for the rendered height.
func (s *StaticSession) PageHeight(ctx context.Context) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.body), nil
}

func (s *StaticSession) Close() error {
	s.closed = true
	s.doc, s.body = nil, nil
	return nil
}

type staticElement struct {
	sel *goquery.Selection
}

func (e *staticElement) Query(_ context.Context, selector string) (Element, bool, error) {
	child := e.sel.Find(selector).First()
	if child.Length() == 0 {
		return nil, false, nil
	}
	return &staticElement{sel: child}, true, nil
}

func (e *staticElement) Text(context.Context) (string, error) {
	return e.sel.Text(), nil
}

func (e *staticElement) Attribute(_ context.Context, name string) (string, bool, error) {
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}
