package nga

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strconv"
	"time"

	"feedroutes/lib/browser"
	"feedroutes/lib/feed"
	"feedroutes/lib/routecache"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("feedroutes/services/nga")

const (
	SiteBase     = "https://nga.178.com"
	cookieDomain = ".nga.178.com"
	// shown to guests until the page redirects by itself.
	deniedMarker = "访客不能直接访问"
)

var (
	ErrIdentityMap   = errors.New("poster identity map not found")
	ErrUnknownPoster = errors.New("poster not in identity map")
	ErrInvalidID     = errors.New("invalid id")
)

type Config struct {
	UID string `json:"uid"`
	CID string `json:"cid"`
}

func (c Config) loggedIn() bool {
	return c.UID != "" && c.CID != ""
}

type Service struct {
	fetcher browser.Fetcher
	cache   *routecache.Cache
	ttl     time.Duration
	config  Config
	now     func() time.Time
	rand    func() float64
}

func NewService(fetcher browser.Fetcher, cache *routecache.Cache, ttl time.Duration, config Config) Service {
	return Service{
		fetcher: fetcher,
		cache:   cache,
		ttl:     ttl,
		config:  config,
		now:     time.Now,
		rand:    rand.Float64,
	}
}

// PageURL is the canonical url of a thread page, anchor is appended as the
// fragment when not empty.
func PageURL(threadID, authorID string, page int, anchor string) string {
	out := fmt.Sprintf("%s/read.php?tid=%s&page=%d", SiteBase, url.QueryEscape(threadID), page)
	if authorID != "" {
		out += "&authorid=" + url.QueryEscape(authorID)
	}
	if anchor != "" {
		out += "#" + anchor
	}
	return out
}

// navigationURL adds a random rand parameter so that every visit bypasses
// upstream caching. It is never used as an item link or cache key.
func (s Service) navigationURL(threadID, authorID string, page int) string {
	rnd := strconv.FormatFloat(s.rand()*1000, 'f', -1, 64)
	return PageURL(threadID, authorID, page, "") + "&rand=" + url.QueryEscape(rnd)
}

func (s Service) cookies() []browser.Cookie {
	cookies := []browser.Cookie{{
		Name:   "guestJs",
		Value:  strconv.FormatInt(s.now().Unix(), 10),
		Domain: cookieDomain,
		Path:   "/",
	}}
	if s.config.loggedIn() {
		cookies = append(
			cookies,
			browser.Cookie{Name: "ngaPassportUid", Value: s.config.UID, Domain: cookieDomain, Path: "/"},
			browser.Cookie{Name: "ngaPassportCid", Value: s.config.CID, Domain: cookieDomain, Path: "/"},
		)
	}
	return cookies
}

func (s Service) fetchPage(ctx context.Context, threadID, authorID string, page int) (feed.RawPage, error) {
	return s.fetcher.Fetch(ctx, browser.FetchOptions{
		URL:          s.navigationURL(threadID, authorID, page),
		Cookies:      s.cookies(),
		Allow:        browser.DocumentAndScript,
		DeniedMarker: deniedMarker,
		GracePeriod:  browser.DefaultGracePeriod,
		Root:         "html",
	})
}

func validateIDs(threadID, authorID string) error {
	_, err := strconv.ParseUint(threadID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: thread %q", ErrInvalidID, threadID)
	}
	if authorID == "" {
		return nil
	}
	_, err = strconv.ParseInt(authorID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: author %q", ErrInvalidID, authorID)
	}
	return nil
}

// Thread returns the posts on the last page of a thread, only the posts of
// authorID when it is not empty.
func (s Service) Thread(ctx context.Context, threadID, authorID string) (feed.Feed, error) {
	ctx, span := tracer.Start(ctx, "Thread")
	defer span.End()

	span.SetAttributes(
		attribute.String("thread_id", threadID),
		attribute.String("author_id", authorID),
	)

	err := validateIDs(threadID, authorID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return feed.Feed{}, err
	}

	key := SiteBase + "/read.php?tid=" + threadID + "&authorid=" + authorID
	out, err := routecache.TryGet(ctx, s.cache, key, func(ctx context.Context) (feed.Feed, error) {
		return s.thread(ctx, threadID, authorID)
	}, s.ttl, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return feed.Feed{}, err
	}
	return out, nil
}

func (s Service) thread(ctx context.Context, threadID, authorID string) (feed.Feed, error) {
	pagination, err := s.ResolveLastPage(ctx, threadID, authorID)
	if err != nil {
		return feed.Feed{}, err
	}

	raw, err := s.fetchPage(ctx, threadID, authorID, pagination.LastPage)
	if err != nil {
		return feed.Feed{}, err
	}
	return ExtractThread(ctx, raw.Markup, pagination)
}
