package copymanga

import (
	"context"
	_ "embed"
	"strconv"
	"strings"
	"testing"
	"time"

	"feedroutes/lib/browser"
	"feedroutes/lib/feed"
	"feedroutes/lib/relay"
	"feedroutes/lib/routecache"
	"feedroutes/lib/testutil"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/author.html
var authorPage string

//go:embed testdata/author_relayed.html
var relayedAuthorPage string

func newTestService(t testing.TB, site *testutil.FakeSite, relayConfig relay.Config) Service {
	cache, err := routecache.New(context.Background(), routecache.Options{})
	require.NoError(t, err)
	return NewService(browser.NewController(site.Launch), cache, time.Minute, relayConfig)
}

// encodeLikeRelay wraps markup the way the relay embeds the original body.
func encodeLikeRelay(markup string) string {
	values := make([]string, 0, len(markup))
	for _, b := range []byte(markup) {
		values = append(values, strconv.Itoa(int(b)))
	}
	return `<p>loading</p><script>const originalBodyBase64Encoded = "` + strings.Join(values, ",") + `";</script>`
}

func TestAuthor(t *testing.T) {
	_, cleanup := testutil.SetupService(t, testutil.ServiceParams{Name: "copymanga"})
	defer cleanup()

	site := &testutil.FakeSite{
		Pages: map[string]string{"/author/hiroyuki/comics": authorPage},
		Resources: []testutil.FakeResource{
			{URL: "https://www.mangacopy.com/static/app.js", Type: browser.ResourceScript},
		},
	}
	s := newTestService(t, site, relay.Config{})

	out, err := s.Author(context.Background(), "hiroyuki")
	require.NoError(t, err)

	expected := feed.Feed{
		Title:       "拷贝漫画 - [廣井 宏之] 相关作品",
		Link:        "https://www.mangacopy.com/author/hiroyuki/comics",
		Description: "[廣井 宏之] 相关作品",
		Items: []feed.Item{
			{
				Title:       "異世界迷宮的最深部為目標",
				Link:        "https://www.mangacopy.com/comic/yishijie",
				Author:      "廣井 宏之",
				Description: `<img src="https://sw.mangafuna.xyz/y/yishijie/cover/1.jpg.328x422.jpg">`,
			},
			{
				Title:       "懶加載的封面",
				Link:        "https://www.mangacopy.com/comic/lazy",
				Author:      "廣井 宏之",
				Description: `<img src="https://sw.mangafuna.xyz/l/lazy/cover/2.jpg.328x422.jpg">`,
			},
			{
				Title:  "沒有封面",
				Link:   "https://www.mangacopy.com/comic/nocover",
				Author: "廣井 宏之",
			},
		},
	}
	if diff := cmp.Diff(expected, out); diff != "" {
		t.Fatal(diff)
	}
	for _, item := range out.Items {
		require.NoError(t, item.Validate())
	}

	require.Equal(t, []string{"https://www.mangacopy.com/author/hiroyuki/comics"}, site.Navigations())
	require.Empty(t, site.Cookies())
	require.Equal(t, []string{"https://www.mangacopy.com/static/app.js"}, site.Aborted())

	_, err = s.Author(context.Background(), "hiroyuki")
	require.NoError(t, err)
	require.Len(t, site.Navigations(), 1)
}

func TestAuthorThroughRelay(t *testing.T) {
	site := &testutil.FakeSite{
		Pages: map[string]string{"/author/hiroyuki/comics": encodeLikeRelay(relayedAuthorPage)},
	}
	s := newTestService(t, site, relay.Config{
		Base:  "https://relay.example.dev/",
		Token: "hunter2",
	})

	out, err := s.Author(context.Background(), "hiroyuki")
	require.NoError(t, err)

	require.Equal(t, []string{
		"https://relay.example.dev/https://www.mangacopy.com/author/hiroyuki/comics",
	}, site.Navigations())
	require.Equal(t, []browser.Cookie{{
		Name:   "__PROXY_PWD__",
		Value:  "hunter2",
		Domain: "relay.example.dev",
		Path:   "/",
	}}, site.Cookies())

	require.Equal(t, "https://www.mangacopy.com/author/hiroyuki/comics", out.Link)
	require.Len(t, out.Items, 1)
	require.Equal(t, "https://www.mangacopy.com/comic/yishijie", out.Items[0].Link)
	require.Equal(t, `<img src="https://sw.mangafuna.xyz/y/yishijie/cover/1.jpg.328x422.jpg">`, out.Items[0].Description)
	require.Equal(t, "廣井 宏之", out.Items[0].Author)
}

func TestAuthorRelayWithoutToken(t *testing.T) {
	site := &testutil.FakeSite{
		Pages: map[string]string{"": encodeLikeRelay(relayedAuthorPage)},
	}
	s := newTestService(t, site, relay.Config{Base: "https://relay.example.dev/"})

	out, err := s.Author(context.Background(), "hiroyuki")
	require.NoError(t, err)
	require.Empty(t, site.Cookies())
	require.Len(t, out.Items, 1)
}

func TestAuthorRelayPlainPage(t *testing.T) {
	site := &testutil.FakeSite{
		Pages: map[string]string{"": relayedAuthorPage},
	}
	s := newTestService(t, site, relay.Config{Base: "https://relay.example.dev/", Token: "hunter2"})

	out, err := s.Author(context.Background(), "hiroyuki")
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	require.Equal(t, "https://www.mangacopy.com/comic/yishijie", out.Items[0].Link)
}

func TestAuthorFetchError(t *testing.T) {
	site := &testutil.FakeSite{
		Pages:       map[string]string{"": authorPage},
		NavigateErr: context.DeadlineExceeded,
	}
	s := newTestService(t, site, relay.Config{})

	_, err := s.Author(context.Background(), "hiroyuki")
	require.ErrorIs(t, err, browser.ErrFetch)
	require.Equal(t, 1, site.PagesClosed())
	require.Equal(t, 1, site.BrowsersClosed())
}

func TestAuthorInvalidID(t *testing.T) {
	site := &testutil.FakeSite{}
	s := newTestService(t, site, relay.Config{})

	_, err := s.Author(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidID)
	_, err = s.Author(context.Background(), "a/b")
	require.ErrorIs(t, err, ErrInvalidID)
	require.Equal(t, 0, site.Launched())
}
