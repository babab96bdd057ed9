package scraper

import (
	"context"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-listings/browser"
	"github.com/aluiziolira/go-scrape-listings/config"
)

// fakeElement is an in-memory node: children are keyed by the selector that finds them.
type fakeElement struct {
	text     string
	attrs    map[string]string
	children map[string]*fakeElement
	errs     map[string]error
}

func (e *fakeElement) Query(_ context.Context, selector string) (browser.Element, bool, error) {
	if err, ok := e.errs[selector]; ok {
		return nil, false, err
	}
	child, ok := e.children[selector]
	if !ok {
		return nil, false, nil
	}
	return child, true, nil
}

func (e *fakeElement) Text(context.Context) (string, error) {
	return e.text, nil
}

func (e *fakeElement) Attribute(_ context.Context, name string) (string, bool, error) {
	v, ok := e.attrs[name]
	return v, ok, nil
}

// fakePage is either a result page (items) or a detail page (root).
type fakePage struct {
	items []*fakeElement
	root  *fakeElement
}

type fakeSession struct {
	mu sync.Mutex

	pages map[string]*fakePage
	// failures counts how many more loads of a URL fail; negative fails forever.
	failures map[string]int
	heights  []int

	current     *fakePage
	navigations []string
	heightReads int
	scrolls     int
	closed      bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		pages:    make(map[string]*fakePage),
		failures: make(map[string]int),
	}
}

func (s *fakeSession) Navigate(ctx context.Context, url string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	s.navigations = append(s.navigations, url)
	s.current = nil
	if n := s.failures[url]; n != 0 {
		if n > 0 {
			s.failures[url] = n - 1
		}
		return browser.ErrTimeout
	}
	s.current = s.pages[url]
	return nil
}

func (s *fakeSession) WaitForSelector(_ context.Context, selector string, _ time.Duration) (browser.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, browser.ErrTimeout
	}
	if s.current.root != nil {
		if child, ok := s.current.root.children[selector]; ok {
			return child, nil
		}
		return nil, browser.ErrTimeout
	}
	if len(s.current.items) == 0 {
		return nil, browser.ErrTimeout
	}
	return s.current.items[0], nil
}

func (s *fakeSession) QueryAll(context.Context, string) ([]browser.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, nil
	}
	out := make([]browser.Element, 0, len(s.current.items))
	for _, item := range s.current.items {
		out = append(out, item)
	}
	return out, nil
}

func (s *fakeSession) Query(ctx context.Context, selector string) (browser.Element, bool, error) {
	s.mu.Lock()
	page := s.current
	s.mu.Unlock()
	if page == nil || page.root == nil {
		return nil, false, nil
	}
	return page.root.Query(ctx, selector)
}

func (s *fakeSession) ScrollToBottom(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrolls++
	return nil
}

func (s *fakeSession) PageHeight(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.heights) == 0 {
		return 1000, nil
	}
	i := s.heightReads
	if i >= len(s.heights) {
		i = len(s.heights) - 1
	}
	s.heightReads++
	return s.heights[i], nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) navigationCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.navigations {
		if u == url {
			n++
		}
	}
	return n
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "https://shop.test"
	cfg.SearchURL = "https://shop.test/np/search"
	cfg.MaxPages = 3
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = time.Millisecond
	return cfg
}

func searchItem(cfg *config.Config, name, price, href string) *fakeElement {
	s := cfg.Search
	return &fakeElement{children: map[string]*fakeElement{
		s.Name:        {text: name},
		s.Price:       {text: price},
		s.Link:        {attrs: map[string]string{"href": href}},
		s.Image:       {attrs: map[string]string{"src": "//img.test/" + name + ".jpg"}},
		s.Rating:      {text: "4.5"},
		s.ReviewCount: {text: "(1,234)"},
	}}
}

func detailPage(cfg *config.Config, name, price string) *fakePage {
	return &fakePage{root: &fakeElement{children: map[string]*fakeElement{
		cfg.Detail.Name:  {text: name},
		cfg.Detail.Price: {text: price},
	}}}
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
