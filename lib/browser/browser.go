// Package browser drives a headless browser to render pages whose content
// only exists after scripts run. Controller holds the session logic and
// talks to the browser through the Browser, Page and Request interfaces,
// chromedp.go is the real driver.
package browser

import (
	"context"
	"errors"
	"time"

	"feedroutes/lib/feed"
)

// ResourceType matches the resource type names reported by the devtools
// protocol.
type ResourceType string

const (
	ResourceDocument   ResourceType = "Document"
	ResourceStylesheet ResourceType = "Stylesheet"
	ResourceImage      ResourceType = "Image"
	ResourceMedia      ResourceType = "Media"
	ResourceFont       ResourceType = "Font"
	ResourceScript     ResourceType = "Script"
	ResourceXHR        ResourceType = "XHR"
	ResourceFetch      ResourceType = "Fetch"
	ResourceOther      ResourceType = "Other"
)

var (
	DocumentOnly      = []ResourceType{ResourceDocument}
	DocumentAndScript = []ResourceType{ResourceDocument, ResourceScript}
)

var (
	ErrFetch           = errors.New("browser fetch failed")
	ErrSelectorTimeout = errors.New("timed out waiting for selector")
)

type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// Request is a paused network request, exactly one of Continue or Abort
// must be called on it.
type Request interface {
	URL() string
	ResourceType() ResourceType
	Continue() error
	Abort() error
}

type Page interface {
	// SetRequestInterception pauses every request the page makes and hands
	// it to handler.
	SetRequestInterception(ctx context.Context, handler func(Request)) error
	SetCookies(ctx context.Context, cookies ...Cookie) error
	Navigate(ctx context.Context, url string) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	// Content is the serialized markup of the whole document as it is now.
	Content(ctx context.Context) (string, error)
	// InnerHTML is the inner markup of the first element matching selector,
	// or "" if nothing matches.
	InnerHTML(ctx context.Context, selector string) (string, error)
	Close() error
}

type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Launcher starts a fresh browser instance.
type Launcher func(ctx context.Context) (Browser, error)

// Fetcher renders a page and returns its markup, Controller is the
// implementation used outside of tests.
type Fetcher interface {
	Fetch(ctx context.Context, opts FetchOptions) (feed.RawPage, error)
}
