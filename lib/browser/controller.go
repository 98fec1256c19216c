package browser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"feedroutes/lib/feed"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("feedroutes/lib/browser")
var meter = otel.Meter("feedroutes/lib/browser")

var activeSessions, _ = meter.Int64UpDownCounter("browser.active_sessions")
var interceptedRequests, _ = meter.Int64Counter("browser.intercepted_requests")

const (
	DefaultNavigationTimeout = time.Second * 30
	DefaultWaitTimeout       = time.Second * 10
	DefaultGracePeriod       = time.Second * 3
)

type FetchOptions struct {
	URL     string
	Cookies []Cookie
	// Allow lists the resource types that may load, everything else is
	// aborted. Defaults to DocumentOnly.
	Allow []ResourceType

	// WaitSelector, if set, must appear within WaitTimeout or the fetch
	// fails with ErrSelectorTimeout.
	WaitSelector string
	WaitTimeout  time.Duration

	// DeniedMarker is text shown by an interstitial that redirects by
	// itself; when it is present after navigation the controller waits
	// GracePeriod before reading the page.
	DeniedMarker string
	GracePeriod  time.Duration

	// Root is the element whose inner markup is returned, "body" by default.
	Root string

	NavigationTimeout time.Duration
}

func (o FetchOptions) withDefaults() FetchOptions {
	if len(o.Allow) == 0 {
		o.Allow = DocumentOnly
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = DefaultWaitTimeout
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = DefaultGracePeriod
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = DefaultNavigationTimeout
	}
	if o.Root == "" {
		o.Root = "body"
	}
	return o
}

type Controller struct {
	launch Launcher
}

func NewController(launch Launcher) Controller {
	return Controller{launch: launch}
}

func closeLogged(ctx context.Context, what string, c io.Closer) {
	err := c.Close()
	if err != nil {
		slog.WarnContext(ctx, "failed to close browser resource", "resource", what, "err", err)
	}
}

func filterRequests(ctx context.Context, allow []ResourceType) func(Request) {
	allowed := map[ResourceType]bool{}
	for _, t := range allow {
		allowed[t] = true
	}
	return func(req Request) {
		var err error
		if allowed[req.ResourceType()] {
			err = req.Continue()
		} else {
			err = req.Abort()
		}
		interceptedRequests.Add(ctx, 1, metric.WithAttributes(
			attribute.String("resource_type", string(req.ResourceType())),
			attribute.Bool("allowed", allowed[req.ResourceType()]),
		))
		if err != nil {
			slog.DebugContext(ctx, "intercepted request not resolved", "url", req.URL(), "err", err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fetch renders opts.URL in a new browser and returns the inner markup of
// opts.Root. The page and browser are closed before Fetch returns, whether
// it succeeds or not.
func (c Controller) Fetch(ctx context.Context, opts FetchOptions) (feed.RawPage, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()

	opts = opts.withDefaults()
	span.SetAttributes(attribute.String("url", opts.URL))

	fail := func(step string, err error) (feed.RawPage, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, step)
		return feed.RawPage{}, fmt.Errorf("%w: %s %s: %w", ErrFetch, step, opts.URL, err)
	}

	b, err := c.launch(ctx)
	if err != nil {
		return fail("launch browser", err)
	}
	activeSessions.Add(ctx, 1)
	defer activeSessions.Add(ctx, -1)
	defer closeLogged(ctx, "browser", b)

	page, err := b.NewPage(ctx)
	if err != nil {
		return fail("open page", err)
	}
	defer closeLogged(ctx, "page", page)

	err = page.SetRequestInterception(ctx, filterRequests(ctx, opts.Allow))
	if err != nil {
		return fail("enable interception", err)
	}

	if len(opts.Cookies) > 0 {
		err = page.SetCookies(ctx, opts.Cookies...)
		if err != nil {
			return fail("set cookies", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, opts.NavigationTimeout)
	err = page.Navigate(navCtx, opts.URL)
	cancel()
	if err != nil {
		return fail("navigate", err)
	}

	if opts.WaitSelector != "" {
		err = page.WaitForSelector(ctx, opts.WaitSelector, opts.WaitTimeout)
		if err != nil {
			return fail("wait for "+opts.WaitSelector, fmt.Errorf("%w: %w", ErrSelectorTimeout, err))
		}
	}

	if opts.DeniedMarker != "" {
		interim, err := page.Content(ctx)
		if err != nil {
			return fail("read interim content", err)
		}
		if strings.Contains(interim, opts.DeniedMarker) {
			slog.DebugContext(ctx, "access interstitial detected, waiting", "url", opts.URL, "grace", opts.GracePeriod)
			span.AddEvent("grace period")
			err = sleep(ctx, opts.GracePeriod)
			if err != nil {
				return fail("grace period", err)
			}
		}
	}

	markup, err := page.InnerHTML(ctx, opts.Root)
	if err != nil {
		return fail("extract "+opts.Root, err)
	}
	span.SetAttributes(attribute.Int("markup_length", len(markup)))

	return feed.RawPage{Markup: markup, URL: opts.URL}, nil
}
