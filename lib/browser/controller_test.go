package browser_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"feedroutes/lib/browser"
	"feedroutes/lib/testutil"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	site := &testutil.FakeSite{
		Pages: map[string]string{
			"example.com":         "<p>generic</p>",
			"example.com/thread/": "<p>thread</p>",
		},
		Resources: []testutil.FakeResource{
			{URL: "https://example.com/app.js", Type: browser.ResourceScript},
			{URL: "https://example.com/logo.png", Type: browser.ResourceImage},
			{URL: "https://example.com/style.css", Type: browser.ResourceStylesheet},
		},
	}
	controller := browser.NewController(site.Launch)

	page, err := controller.Fetch(context.Background(), browser.FetchOptions{
		URL: "https://example.com/thread/1",
		Cookies: []browser.Cookie{
			{Name: "guestJs", Value: "1700000000", Domain: ".example.com", Path: "/"},
		},
		Allow:        browser.DocumentAndScript,
		WaitSelector: "#content",
	})
	require.NoError(t, err)
	require.Equal(t, "<p>thread</p>", page.Markup)
	require.Equal(t, "https://example.com/thread/1", page.URL)

	require.Equal(t, []string{"https://example.com/thread/1", "https://example.com/app.js"}, site.Continued())
	require.Equal(t, []string{"https://example.com/logo.png", "https://example.com/style.css"}, site.Aborted())
	require.Len(t, site.Cookies(), 1)
	require.Equal(t, "guestJs", site.Cookies()[0].Name)

	expected := []string{
		"launch",
		"new page",
		"intercept",
		"cookies",
		"navigate https://example.com/thread/1",
		"wait #content",
		"inner html body",
		"close page",
		"close browser",
	}
	if diff := cmp.Diff(expected, site.Events()); diff != "" {
		t.Fatal(diff)
	}
}

func TestFetchDefaultsToDocumentOnly(t *testing.T) {
	site := &testutil.FakeSite{
		Pages: map[string]string{"": "<div></div>"},
		Resources: []testutil.FakeResource{
			{URL: "https://example.com/app.js", Type: browser.ResourceScript},
			{URL: "https://example.com/api", Type: browser.ResourceXHR},
		},
	}
	controller := browser.NewController(site.Launch)

	_, err := controller.Fetch(context.Background(), browser.FetchOptions{URL: "https://example.com"})
	require.NoError(t, err)
	require.Equal(t, []string{"https://example.com"}, site.Continued())
	require.Equal(t, []string{"https://example.com/app.js", "https://example.com/api"}, site.Aborted())
}

func TestFetchReleasesOnSelectorTimeout(t *testing.T) {
	site := &testutil.FakeSite{
		Pages:         map[string]string{"": "<div></div>"},
		HangSelectors: []string{"#never"},
	}
	controller := browser.NewController(site.Launch)

	start := time.Now()
	_, err := controller.Fetch(context.Background(), browser.FetchOptions{
		URL:          "https://example.com",
		WaitSelector: "#never",
		WaitTimeout:  50 * time.Millisecond,
	})
	require.ErrorIs(t, err, browser.ErrSelectorTimeout)
	require.ErrorIs(t, err, browser.ErrFetch)
	require.Less(t, time.Since(start), 5*time.Second)

	require.Equal(t, 1, site.Launched())
	require.Equal(t, 1, site.PagesClosed())
	require.Equal(t, 1, site.BrowsersClosed())
}

func TestFetchReleasesOnNavigationError(t *testing.T) {
	site := &testutil.FakeSite{NavigateErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	controller := browser.NewController(site.Launch)

	_, err := controller.Fetch(context.Background(), browser.FetchOptions{URL: "https://nowhere.invalid"})
	require.ErrorIs(t, err, browser.ErrFetch)
	require.ErrorContains(t, err, "navigate")
	require.Equal(t, 1, site.PagesClosed())
	require.Equal(t, 1, site.BrowsersClosed())
}

func TestFetchLaunchError(t *testing.T) {
	launchErr := errors.New("no chrome binary")
	site := &testutil.FakeSite{LaunchErr: launchErr}
	controller := browser.NewController(site.Launch)

	_, err := controller.Fetch(context.Background(), browser.FetchOptions{URL: "https://example.com"})
	require.ErrorIs(t, err, browser.ErrFetch)
	require.ErrorIs(t, err, launchErr)
	require.Equal(t, 0, site.BrowsersClosed())
}

func TestFetchGracePeriod(t *testing.T) {
	const marker = "访客不能直接访问"

	t.Run("waits when the interstitial is shown", func(t *testing.T) {
		site := &testutil.FakeSite{
			Pages:   map[string]string{"": "<div>thread</div>"},
			Interim: "<html><body>" + marker + "</body></html>",
		}
		controller := browser.NewController(site.Launch)

		start := time.Now()
		page, err := controller.Fetch(context.Background(), browser.FetchOptions{
			URL:          "https://example.com/read.php?tid=1",
			DeniedMarker: marker,
			GracePeriod:  100 * time.Millisecond,
			Root:         "html",
		})
		require.NoError(t, err)
		require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
		require.Equal(t, "<div>thread</div>", page.Markup)
		require.Contains(t, site.Events(), "inner html html")
	})

	t.Run("does not wait otherwise", func(t *testing.T) {
		site := &testutil.FakeSite{
			Pages:   map[string]string{"": "<div>thread</div>"},
			Interim: "<html><body>thread</body></html>",
		}
		controller := browser.NewController(site.Launch)

		start := time.Now()
		_, err := controller.Fetch(context.Background(), browser.FetchOptions{
			URL:          "https://example.com/read.php?tid=1",
			DeniedMarker: marker,
			GracePeriod:  time.Hour,
		})
		require.NoError(t, err)
		require.Less(t, time.Since(start), time.Minute)
	})

	t.Run("cancelled context aborts the wait", func(t *testing.T) {
		site := &testutil.FakeSite{
			Pages:   map[string]string{"": "<div></div>"},
			Interim: marker,
		}
		controller := browser.NewController(site.Launch)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := controller.Fetch(ctx, browser.FetchOptions{
			URL:          "https://example.com",
			DeniedMarker: marker,
			GracePeriod:  time.Hour,
		})
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.Equal(t, 1, site.BrowsersClosed())
	})
}
