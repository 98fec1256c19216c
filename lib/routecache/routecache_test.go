package routecache

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"feedroutes/lib/feed"
	"feedroutes/lib/testutil"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(t testing.TB, db *sql.DB) (*Cache, *fakeClock) {
	c, err := New(context.Background(), Options{DB: db})
	require.NoError(t, err)
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	c.now = clock.Now
	return c, clock
}

func TestTryGetSingleFlight(t *testing.T) {
	_, cleanup := testutil.SetupService(t, testutil.ServiceParams{Name: "routecache"})
	defer cleanup()

	c, _ := newTestCache(t, nil)

	var calls atomic.Int32
	release := make(chan struct{})
	produce := func(ctx context.Context) (feed.Feed, error) {
		calls.Add(1)
		<-release
		return feed.Feed{Title: "slow"}, nil
	}

	const callers = 8
	results := make([]feed.Feed, callers)
	errs := make([]error, callers)
	var started sync.WaitGroup
	var done sync.WaitGroup
	for i := 0; i < callers; i++ {
		started.Add(1)
		done.Add(1)
		go func(i int) {
			defer done.Done()
			started.Done()
			results[i], errs[i] = TryGet(context.Background(), c, "https://example.com/feed", produce, time.Minute, false)
		}(i)
	}
	started.Wait()
	// give every caller a chance to join the flight.
	time.Sleep(50 * time.Millisecond)
	close(release)
	done.Wait()

	require.Equal(t, int32(1), calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "slow", results[i].Title)
	}
}

func TestTryGetCallerCancelDoesNotAbortFlight(t *testing.T) {
	c, _ := newTestCache(t, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	var enter sync.Once
	var produceErr error
	produce := func(ctx context.Context) (feed.Feed, error) {
		enter.Do(func() { close(entered) })
		<-release
		produceErr = ctx.Err()
		return feed.Feed{Title: "shared"}, nil
	}

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := TryGet(first, c, "https://example.com/feed", produce, time.Minute, false)
		firstErr <- err
	}()
	<-entered

	type outcome struct {
		out feed.Feed
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		out, err := TryGet(context.Background(), c, "https://example.com/feed", produce, time.Minute, false)
		second <- outcome{out: out, err: err}
	}()
	// let the second caller join the flight.
	time.Sleep(50 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	res := <-second
	require.NoError(t, res.err)
	require.Equal(t, "shared", res.out.Title)
	require.NoError(t, produceErr)
}

func TestTryGetExpiry(t *testing.T) {
	c, clock := newTestCache(t, nil)

	calls := 0
	produce := func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}

	v, err := TryGet(context.Background(), c, "key", produce, time.Minute, false)
	require.NoError(t, err)
	require.Equal(t, 1, v)

	clock.Advance(30 * time.Second)
	v, err = TryGet(context.Background(), c, "key", produce, time.Minute, false)
	require.NoError(t, err)
	require.Equal(t, 1, v)

	clock.Advance(time.Minute)
	v, err = TryGet(context.Background(), c, "key", produce, time.Minute, false)
	require.NoError(t, err)
	require.Equal(t, 2, v)
	require.Equal(t, 2, calls)
}

func TestTryGetStaleOnError(t *testing.T) {
	c, clock := newTestCache(t, nil)
	upstreamErr := errors.New("upstream down")

	_, err := TryGet(context.Background(), c, "key", func(ctx context.Context) (string, error) {
		return "first", nil
	}, time.Minute, true)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	failing := func(ctx context.Context) (string, error) {
		return "", upstreamErr
	}

	v, err := TryGet(context.Background(), c, "key", failing, time.Minute, true)
	require.NoError(t, err)
	require.Equal(t, "first", v)

	_, err = TryGet(context.Background(), c, "key", failing, time.Minute, false)
	require.ErrorIs(t, err, upstreamErr)

	_, err = TryGet(context.Background(), c, "other", failing, time.Minute, true)
	require.ErrorIs(t, err, upstreamErr)
}

func TestTryGetErrorsAreNotCached(t *testing.T) {
	c, _ := newTestCache(t, nil)

	calls := 0
	produce := func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	}

	_, err := TryGet(context.Background(), c, "key", produce, time.Minute, false)
	require.Error(t, err)
	v, err := TryGet(context.Background(), c, "key", produce, time.Minute, false)
	require.NoError(t, err)
	require.Equal(t, "ok", v)
}

func TestTryGetPersistent(t *testing.T) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:   "routecache",
		WithDB: true,
	})
	defer cleanup()

	published := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)
	expected := feed.Feed{
		Title: "thread",
		Link:  "https://example.com/thread",
		Items: []feed.Item{{
			Title:   "#1",
			Link:    "https://example.com/thread#1",
			PubDate: &published,
		}},
	}

	first, _ := newTestCache(t, res.DB)
	_, err := TryGet(context.Background(), first, "https://example.com/thread", func(ctx context.Context) (feed.Feed, error) {
		return expected, nil
	}, time.Hour, false)
	require.NoError(t, err)

	// a fresh cache over the same table behaves like a restarted process.
	second, _ := newTestCache(t, res.DB)
	got, err := TryGet(context.Background(), second, "https://example.com/thread", func(ctx context.Context) (feed.Feed, error) {
		return feed.Feed{}, errors.New("should not be called")
	}, time.Hour, false)
	require.NoError(t, err)
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Fatal(diff)
	}

	require.NoError(t, second.Purge(context.Background()))
	var count int
	require.NoError(t, res.DB.QueryRow("select count(*) from route_cache").Scan(&count))
	require.Equal(t, 0, count)
}

func TestNormalizeKey(t *testing.T) {
	require.Equal(
		t,
		NormalizeKey("https://Example.com/read.php?tid=1&authorid=2#top"),
		NormalizeKey("https://example.com/read.php?authorid=2&tid=1"),
	)
}
