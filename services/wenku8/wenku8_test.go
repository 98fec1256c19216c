package wenku8

import (
	"context"
	_ "embed"
	"testing"
	"time"

	"feedroutes/lib/browser"
	"feedroutes/lib/feed"
	"feedroutes/lib/routecache"
	"feedroutes/lib/testutil"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/index.html
var indexPage string

//go:embed testdata/index_fullwidth.html
var fullwidthIndexPage string

func newTestService(t testing.TB, site *testutil.FakeSite) Service {
	cache, err := routecache.New(context.Background(), routecache.Options{})
	require.NoError(t, err)
	return NewService(browser.NewController(site.Launch), cache, time.Minute)
}

func TestIndexURL(t *testing.T) {
	require.Equal(t, "https://www.wenku8.net/novel/0/74/index.htm", IndexURL(74))
	require.Equal(t, "https://www.wenku8.net/novel/2/2580/index.htm", IndexURL(2580))
	require.Equal(t, "https://www.wenku8.net/book/2580.htm", BookURL(2580))
}

func TestChapters(t *testing.T) {
	_, cleanup := testutil.SetupService(t, testutil.ServiceParams{Name: "wenku8"})
	defer cleanup()

	site := &testutil.FakeSite{
		Pages: map[string]string{"/novel/0/74/index.htm": indexPage},
	}
	s := newTestService(t, site)

	out, err := s.Chapters(context.Background(), "74")
	require.NoError(t, err)

	expected := feed.Feed{
		Title: "轻小说文库 魔法禁书目录",
		Link:  "https://www.wenku8.net/book/74.htm",
		Items: []feed.Item{
			{Title: "序章 魔法之国的少女", Link: "https://www.wenku8.net/novel/0/74/1.htm"},
			{Title: "第一章 科学与魔法", Link: "https://www.wenku8.net/novel/0/74/2.htm"},
			{Title: "第二章 吸血杀手", Link: "https://www.wenku8.net/novel/0/74/3.htm"},
		},
	}
	if diff := cmp.Diff(expected, out); diff != "" {
		t.Fatal(diff)
	}

	require.Contains(t, site.Events(), "wait #headlink")
	require.Equal(t, []string{"https://www.wenku8.net/novel/0/74/index.htm"}, site.Continued())
}

func TestChaptersKeepsWideSpaces(t *testing.T) {
	site := &testutil.FakeSite{
		Pages: map[string]string{"/novel/2/2580/index.htm": fullwidthIndexPage},
	}
	s := newTestService(t, site)

	out, err := s.Chapters(context.Background(), "2580")
	require.NoError(t, err)

	expected := feed.Feed{
		Title: "轻小说文库 魔法禁书目录\u3000新约",
		Link:  "https://www.wenku8.net/book/2580.htm",
		Items: []feed.Item{
			{Title: "第一章\u3000出发", Link: "https://www.wenku8.net/novel/2/2580/1.htm"},
			{Title: "第二章\u00a0归来", Link: "https://www.wenku8.net/novel/2/2580/2.htm"},
		},
	}
	if diff := cmp.Diff(expected, out); diff != "" {
		t.Fatal(diff)
	}
}

func TestChaptersSelectorTimeout(t *testing.T) {
	site := &testutil.FakeSite{
		Pages:         map[string]string{"": indexPage},
		HangSelectors: []string{"#headlink"},
	}
	s := newTestService(t, site)
	s.waitTimeout = 50 * time.Millisecond

	_, err := s.Chapters(context.Background(), "74")
	require.ErrorIs(t, err, browser.ErrSelectorTimeout)
	require.Equal(t, 1, site.PagesClosed())
	require.Equal(t, 1, site.BrowsersClosed())
}

func TestChaptersInvalidID(t *testing.T) {
	site := &testutil.FakeSite{}
	s := newTestService(t, site)

	_, err := s.Chapters(context.Background(), "novel")
	require.ErrorIs(t, err, ErrInvalidID)
	require.Equal(t, 0, site.Launched())
}
