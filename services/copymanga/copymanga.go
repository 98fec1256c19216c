package copymanga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"feedroutes/lib/browser"
	"feedroutes/lib/feed"
	"feedroutes/lib/proxydecode"
	"feedroutes/lib/relay"
	"feedroutes/lib/routecache"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("feedroutes/services/copymanga")

const SiteBase = "https://www.mangacopy.com"

var ErrInvalidID = errors.New("invalid author id")

var authorNameRegex = regexp.MustCompile(`\[(.*?)\]`)

type Service struct {
	fetcher browser.Fetcher
	cache   *routecache.Cache
	ttl     time.Duration
	relay   relay.Config
}

func NewService(fetcher browser.Fetcher, cache *routecache.Cache, ttl time.Duration, relayConfig relay.Config) Service {
	return Service{
		fetcher: fetcher,
		cache:   cache,
		ttl:     ttl,
		relay:   relayConfig,
	}
}

func AuthorURL(id string) string {
	return fmt.Sprintf("%s/author/%s/comics", SiteBase, url.PathEscape(id))
}

// Author lists the works of an author.
func (s Service) Author(ctx context.Context, id string) (feed.Feed, error) {
	ctx, span := tracer.Start(ctx, "Author")
	defer span.End()

	span.SetAttributes(attribute.String("author_id", id))

	if strings.TrimSpace(id) == "" || strings.Contains(id, "/") {
		err := fmt.Errorf("%w: %q", ErrInvalidID, id)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return feed.Feed{}, err
	}

	pageURL := AuthorURL(id)
	target := s.relay.Wrap(pageURL)

	out, err := routecache.TryGet(ctx, s.cache, target, func(ctx context.Context) (feed.Feed, error) {
		opts := browser.FetchOptions{
			URL:   target,
			Allow: browser.DocumentOnly,
			Root:  "body",
		}
		if cookie, ok := s.relay.Cookie(); ok {
			opts.Cookies = append(opts.Cookies, cookie)
		}

		raw, err := s.fetcher.Fetch(ctx, opts)
		if err != nil {
			return feed.Feed{}, err
		}

		markup := raw.Markup
		if s.relay.Enabled() && proxydecode.HasEncodedContent(markup) {
			span.AddEvent("decode relay payload")
			markup = proxydecode.Decode(markup)
		}
		return s.extract(ctx, markup, pageURL)
	}, s.ttl, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return feed.Feed{}, err
	}
	return out, nil
}

func (s Service) canonicalize(href string) (string, error) {
	return feed.Canonicalize(SiteBase, href, s.relay.Base, SiteBase)
}

func (s Service) extract(ctx context.Context, markup, pageURL string) (feed.Feed, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return feed.Feed{}, err
	}

	authorName := ""
	match := authorNameRegex.FindStringSubmatch(
		doc.Find("div[class='correlation-title-top'] h4 span").Text(),
	)
	if match != nil {
		authorName = match[1]
	}

	links := doc.Find("div[class='correlationItem-txt'] > a")
	covers := doc.Find("div[class='correlationItem-img loadingIcon hoverImage'] a img")

	var items []feed.Item
	links.Each(func(i int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		link, err := s.canonicalize(href)
		if err != nil {
			slog.WarnContext(ctx, "skipping work with unusable link", "href", href, "err", err)
			return
		}
		title, _ := a.ChildrenFiltered("p").First().Attr("title")

		item := feed.Item{
			Title:  title,
			Link:   link,
			Author: authorName,
		}

		cover := covers.Eq(i)
		src, ok := cover.Attr("src")
		if !ok || src == "" {
			src, ok = cover.Attr("data-src")
		}
		if ok && src != "" {
			src = s.relay.Strip(src)
			if resolved, err := s.canonicalize(src); err == nil {
				src = resolved
			}
			item.Description = fmt.Sprintf(`<img src="%s">`, src)
		}

		items = append(items, item)
	})

	return feed.Feed{
		Title:       fmt.Sprintf("拷贝漫画 - [%s] 相关作品", authorName),
		Link:        pageURL,
		Description: fmt.Sprintf("[%s] 相关作品", authorName),
		Items:       items,
	}, nil
}
