package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"feedroutes/lib/browser"
)

// FakeResource is a subresource the fake page requests after navigation.
type FakeResource struct {
	URL  string
	Type browser.ResourceType
}

// FakeSite is an in-memory browser.Launcher which records everything the
// controller does to it.
type FakeSite struct {
	// Pages maps a url substring to the markup of the root element, the
	// longest matching key wins.
	Pages map[string]string
	// Interim is the full document content seen right after navigation.
	Interim string
	// Resources are requested through the interception handler on every
	// navigation.
	Resources []FakeResource
	// HangSelectors never appear, waiting on them blocks until the timeout.
	HangSelectors []string
	LaunchErr     error
	NavigateErr   error

	mu             sync.Mutex
	launched       int
	browsersClosed int
	pagesClosed    int
	navigations    []string
	cookies        []browser.Cookie
	continued      []string
	aborted        []string
	events         []string
}

var ErrNoFakePage = errors.New("no fake page for url")

func (s *FakeSite) record(event string) {
	s.events = append(s.events, event)
}

func (s *FakeSite) Launch(ctx context.Context) (browser.Browser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LaunchErr != nil {
		return nil, s.LaunchErr
	}
	s.launched++
	s.record("launch")
	return &fakeBrowser{site: s}, nil
}

func (s *FakeSite) Launched() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launched
}

func (s *FakeSite) BrowsersClosed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.browsersClosed
}

func (s *FakeSite) PagesClosed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pagesClosed
}

func (s *FakeSite) Navigations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigations...)
}

func (s *FakeSite) Cookies() []browser.Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]browser.Cookie(nil), s.cookies...)
}

func (s *FakeSite) Continued() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.continued...)
}

func (s *FakeSite) Aborted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.aborted...)
}

// Events returns the ordered log of calls made against the site.
func (s *FakeSite) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func (s *FakeSite) lookup(url string) (string, bool) {
	best := -1
	markup := ""
	for key, value := range s.Pages {
		if strings.Contains(url, key) && len(key) > best {
			best = len(key)
			markup = value
		}
	}
	return markup, best >= 0
}

type fakeBrowser struct {
	site *FakeSite
}

func (b *fakeBrowser) NewPage(ctx context.Context) (browser.Page, error) {
	b.site.mu.Lock()
	defer b.site.mu.Unlock()
	b.site.record("new page")
	return &fakePage{site: b.site}, nil
}

func (b *fakeBrowser) Close() error {
	b.site.mu.Lock()
	defer b.site.mu.Unlock()
	b.site.browsersClosed++
	b.site.record("close browser")
	return nil
}

type fakePage struct {
	site      *FakeSite
	intercept func(browser.Request)
	url       string
}

func (p *fakePage) SetRequestInterception(ctx context.Context, handler func(browser.Request)) error {
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	p.intercept = handler
	p.site.record("intercept")
	return nil
}

func (p *fakePage) SetCookies(ctx context.Context, cookies ...browser.Cookie) error {
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	p.site.cookies = append(p.site.cookies, cookies...)
	p.site.record("cookies")
	return nil
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.site.mu.Lock()
	p.site.navigations = append(p.site.navigations, url)
	p.site.record("navigate " + url)
	err := p.site.NavigateErr
	resources := append([]FakeResource{{URL: url, Type: browser.ResourceDocument}}, p.site.Resources...)
	p.site.mu.Unlock()

	if err != nil {
		return err
	}
	p.url = url
	if p.intercept != nil {
		for _, r := range resources {
			p.intercept(fakeRequest{site: p.site, res: r})
		}
	}
	return nil
}

func (p *fakePage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	p.site.mu.Lock()
	p.site.record("wait " + selector)
	hang := false
	for _, s := range p.site.HangSelectors {
		if s == selector {
			hang = true
		}
	}
	p.site.mu.Unlock()

	if !hang {
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-timer.C:
		return context.DeadlineExceeded
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *fakePage) Content(ctx context.Context) (string, error) {
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	p.site.record("content")
	return p.site.Interim, nil
}

func (p *fakePage) InnerHTML(ctx context.Context, selector string) (string, error) {
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	p.site.record("inner html " + selector)
	markup, ok := p.site.lookup(p.url)
	if !ok {
		return "", ErrNoFakePage
	}
	return markup, nil
}

func (p *fakePage) Close() error {
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	p.site.pagesClosed++
	p.site.record("close page")
	return nil
}

type fakeRequest struct {
	site *FakeSite
	res  FakeResource
}

func (r fakeRequest) URL() string {
	return r.res.URL
}

func (r fakeRequest) ResourceType() browser.ResourceType {
	return r.res.Type
}

func (r fakeRequest) Continue() error {
	r.site.mu.Lock()
	defer r.site.mu.Unlock()
	r.site.continued = append(r.site.continued, r.res.URL)
	return nil
}

func (r fakeRequest) Abort() error {
	r.site.mu.Lock()
	defer r.site.mu.Unlock()
	r.site.aborted = append(r.site.aborted, r.res.URL)
	return nil
}
