package wenku8

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"feedroutes/lib/browser"
	"feedroutes/lib/feed"
	"feedroutes/lib/htmlutil"
	"feedroutes/lib/routecache"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("feedroutes/services/wenku8")

const (
	SiteBase        = "https://www.wenku8.net"
	readySelector   = "#headlink"
	readyTimeout    = 10 * time.Second
	chapterSelector = ".ccss > a"
)

var ErrInvalidID = errors.New("invalid novel id")

type Service struct {
	fetcher     browser.Fetcher
	cache       *routecache.Cache
	ttl         time.Duration
	waitTimeout time.Duration
}

func NewService(fetcher browser.Fetcher, cache *routecache.Cache, ttl time.Duration) Service {
	return Service{
		fetcher:     fetcher,
		cache:       cache,
		ttl:         ttl,
		waitTimeout: readyTimeout,
	}
}

// IndexURL is the chapter index of a novel, novels are bucketed by
// thousands of ids.
func IndexURL(id int) string {
	return fmt.Sprintf("%s/novel/%d/%d/index.htm", SiteBase, id/1000, id)
}

func BookURL(id int) string {
	return fmt.Sprintf("%s/book/%d.htm", SiteBase, id)
}

func parseID(id string) (int, error) {
	n, err := strconv.Atoi(id)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return n, nil
}

// Chapters lists the chapters of a novel in index order.
func (s Service) Chapters(ctx context.Context, id string) (feed.Feed, error) {
	ctx, span := tracer.Start(ctx, "Chapters")
	defer span.End()

	span.SetAttributes(attribute.String("novel_id", id))

	novel, err := parseID(id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return feed.Feed{}, err
	}

	index := IndexURL(novel)
	out, err := routecache.TryGet(ctx, s.cache, index, func(ctx context.Context) (feed.Feed, error) {
		raw, err := s.fetcher.Fetch(ctx, browser.FetchOptions{
			URL:          index,
			Allow:        browser.DocumentOnly,
			WaitSelector: readySelector,
			WaitTimeout:  s.waitTimeout,
			Root:         "body",
		})
		if err != nil {
			return feed.Feed{}, err
		}
		return extract(ctx, raw.Markup, novel)
	}, s.ttl, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return feed.Feed{}, err
	}
	return out, nil
}

func extract(ctx context.Context, markup string, novel int) (feed.Feed, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return feed.Feed{}, err
	}

	// chapter hrefs are relative to the directory of the index page.
	anchors := htmlutil.GetAnchors(ctx, IndexURL(novel), doc.Find(chapterSelector))
	items := make([]feed.Item, 0, len(anchors))
	for _, a := range anchors {
		items = append(items, feed.Item{
			Title: a.Name,
			Link:  a.Href,
		})
	}

	return feed.Feed{
		Title: "轻小说文库 " + htmlutil.CleanText(doc.Find("#title").Text()),
		Link:  BookURL(novel),
		Items: items,
	}, nil
}
