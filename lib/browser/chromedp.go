package browser

import (
	"context"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

type ChromedpOptions struct {
	// ExecPath of the chrome binary, chromedp looks in the usual places when
	// empty.
	ExecPath  string `json:"exec_path"`
	Headful   bool   `json:"headful"`
	UserAgent string `json:"user_agent"`
}

// ChromedpLauncher starts a new chrome process for every browser it
// launches.
func ChromedpLauncher(opts ChromedpOptions) Launcher {
	return func(ctx context.Context) (Browser, error) {
		allocOpts := append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.NoSandbox,
			chromedp.DisableGPU,
		)
		if opts.ExecPath != "" {
			allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
		}
		if opts.Headful {
			allocOpts = append(allocOpts, chromedp.Flag("headless", false))
		}
		if opts.UserAgent != "" {
			allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
		}

		allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
		browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

		// the first Run on a fresh context starts the browser process.
		err := chromedp.Run(browserCtx)
		if err != nil {
			cancelBrowser()
			cancelAlloc()
			return nil, err
		}

		return &chromedpBrowser{
			ctx:           browserCtx,
			cancelBrowser: cancelBrowser,
			cancelAlloc:   cancelAlloc,
		}, nil
	}
}

type chromedpBrowser struct {
	ctx           context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
}

func (b *chromedpBrowser) NewPage(ctx context.Context) (Page, error) {
	tabCtx, cancelTab := chromedp.NewContext(b.ctx)
	err := chromedp.Run(tabCtx)
	if err != nil {
		cancelTab()
		return nil, err
	}
	return &chromedpPage{ctx: tabCtx, cancel: cancelTab}, nil
}

func (b *chromedpBrowser) Close() error {
	err := chromedp.Cancel(b.ctx)
	b.cancelBrowser()
	b.cancelAlloc()
	return err
}

type chromedpPage struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// run executes actions on the tab, bounded by the deadline and cancellation
// of ctx. Cancelling the derived context does not close the tab, only
// Close does.
func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (p *chromedpPage) SetRequestInterception(ctx context.Context, handler func(Request)) error {
	chromedp.ListenTarget(p.ctx, func(ev any) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		// listeners must not block the event loop.
		go handler(chromedpRequest{page: p, event: paused})
	})
	return p.run(ctx, fetch.Enable())
}

func (p *chromedpPage) SetCookies(ctx context.Context, cookies ...Cookie) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			params := network.SetCookie(c.Name, c.Value).WithDomain(c.Domain)
			if c.Path != "" {
				params = params.WithPath(c.Path)
			}
			err := params.Do(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	}))
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromedpPage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (p *chromedpPage) Content(ctx context.Context) (string, error) {
	var out string
	err := p.run(ctx, chromedp.Evaluate(`document.documentElement.outerHTML`, &out))
	return out, err
}

func (p *chromedpPage) InnerHTML(ctx context.Context, selector string) (string, error) {
	var out string
	expr := "document.querySelector(" + strconv.Quote(selector) + ")?.innerHTML || ''"
	err := p.run(ctx, chromedp.Evaluate(expr, &out))
	return out, err
}

func (p *chromedpPage) Close() error {
	p.cancel()
	return nil
}

type chromedpRequest struct {
	page  *chromedpPage
	event *fetch.EventRequestPaused
}

func (r chromedpRequest) URL() string {
	return r.event.Request.URL
}

func (r chromedpRequest) ResourceType() ResourceType {
	return ResourceType(r.event.ResourceType)
}

func (r chromedpRequest) Continue() error {
	return chromedp.Run(r.page.ctx, fetch.ContinueRequest(r.event.RequestID))
}

func (r chromedpRequest) Abort() error {
	return chromedp.Run(r.page.ctx, fetch.FailRequest(r.event.RequestID, network.ErrorReasonBlockedByClient))
}
