package tachidesk

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"feedroutes/lib/feed"
	"feedroutes/lib/restyutil"
	"feedroutes/lib/routecache"
	"feedroutes/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("feedroutes/services/tachidesk")

const (
	DefaultID   = "1"
	DefaultSite = "192.168.50.50:14567"
)

var (
	ErrUpstream     = errors.New("tachidesk server returned an error")
	ErrInvalidParam = errors.New("invalid parameter")
)

type mangaResponse struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Author      string `json:"author"`
	Source      *struct {
		Name string `json:"name"`
	} `json:"source"`
}

type chapterResponse struct {
	Name string `json:"name"`
	// Index is the 1 based position of the chapter in the manga.
	Index      int    `json:"index"`
	UploadDate int64  `json:"uploadDate"`
	PageCount  int    `json:"pageCount"`
	RealURL    string `json:"realUrl"`
}

type Service struct {
	http  *resty.Client
	cache *routecache.Cache
	ttl   time.Duration
}

// NewService creates the service, output may be nil to disable request
// dumps.
func NewService(cache *routecache.Cache, ttl time.Duration, output restyutil.InstrumentOutput) Service {
	client := resty.New()
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "feedroutes/services/tachidesk/http")
	restyutil.InstrumentClient(client, output)

	return Service{
		http:  client,
		cache: cache,
		ttl:   ttl,
	}
}

func validate(id, site string) error {
	_, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: manga id %q", ErrInvalidParam, id)
	}
	if site == "" || strings.ContainsAny(site, "/?#@") {
		return fmt.Errorf("%w: site %q", ErrInvalidParam, site)
	}
	return nil
}

func getJSON[T any](ctx context.Context, client *resty.Client, url string) (T, error) {
	var out T
	res, err := client.R().
		SetContext(ctx).
		SetResult(&out).
		ForceContentType("application/json").
		Get(url)
	if err != nil {
		if res != nil && res.RawResponse != nil {
			return out, fmt.Errorf("%w: %s: decode response: %w", ErrUpstream, url, err)
		}
		return out, err
	}
	if res.IsError() {
		return out, fmt.Errorf("%w: %s: %s", ErrUpstream, url, res.Status())
	}
	if len(strings.TrimSpace(res.String())) == 0 {
		return out, fmt.Errorf("%w: %s: empty response body", ErrUpstream, url)
	}
	return out, nil
}

// Manga lists the chapters of a manga in a tachidesk library. Empty id and
// site fall back to DefaultID and DefaultSite.
func (s Service) Manga(ctx context.Context, id, site string) (feed.Feed, error) {
	ctx, span := tracer.Start(ctx, "Manga")
	defer span.End()

	if id == "" {
		id = DefaultID
	}
	if site == "" {
		site = DefaultSite
	}
	span.SetAttributes(
		attribute.String("manga_id", id),
		attribute.String("site", site),
	)

	err := validate(id, site)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return feed.Feed{}, err
	}

	root := "http://" + site
	pageURL := fmt.Sprintf("%s/manga/%s", root, id)

	out, err := routecache.TryGet(ctx, s.cache, pageURL, func(ctx context.Context) (feed.Feed, error) {
		manga, err := getJSON[mangaResponse](ctx, s.http, fmt.Sprintf("%s/api/v1/manga/%s/?onlineFetch=false", root, id))
		if err != nil {
			return feed.Feed{}, err
		}
		chapters, err := getJSON[[]chapterResponse](ctx, s.http, fmt.Sprintf("%s/api/v1/manga/%s/chapters?onlineFetch=true", root, id))
		if err != nil {
			return feed.Feed{}, err
		}
		return buildFeed(manga, chapters, pageURL), nil
	}, s.ttl, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return feed.Feed{}, err
	}
	return out, nil
}

func buildFeed(manga mangaResponse, chapters []chapterResponse, pageURL string) feed.Feed {
	source := ""
	if manga.Source != nil {
		source = manga.Source.Name
	}

	items := make([]feed.Item, 0, len(chapters))
	for _, chapter := range chapters {
		link := fmt.Sprintf("%s/chapter/%d", pageURL, chapter.Index)
		item := feed.Item{
			Title:  chapter.Name,
			Link:   link,
			Author: manga.Author,
			Description: fmt.Sprintf(
				`<h1>%dP </h1><a href="%s">Tachidesk-server </a><p></p><a href="%s">%s </a>`,
				chapter.PageCount, link, chapter.RealURL, source,
			),
		}
		if chapter.UploadDate > 0 {
			uploaded := time.UnixMilli(chapter.UploadDate).UTC()
			item.PubDate = &uploaded
		}
		items = append(items, item)
	}

	return feed.Feed{
		Title:       manga.Title + " - " + source,
		Link:        pageURL,
		Description: manga.Description,
		Items:       items,
	}
}
