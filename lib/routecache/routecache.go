package routecache

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/purell"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

//go:embed schema.sql
var Schema string

var tracer = otel.Tracer("feedroutes/lib/routecache")
var meter = otel.Meter("feedroutes/lib/routecache")

var hitCounter, _ = meter.Int64Counter("routecache.hit")
var missCounter, _ = meter.Int64Counter("routecache.miss")
var errorCounter, _ = meter.Int64Counter("routecache.error")

const DefaultSize = 256

type Options struct {
	// Size is the number of entries kept in memory.
	Size int
	// DB enables the persistent tier when set.
	DB *sql.DB
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

type Cache struct {
	memory *lru.Cache[string, entry]
	db     *sql.DB
	group  singleflight.Group
	now    func() time.Time
}

func New(ctx context.Context, opts Options) (*Cache, error) {
	size := opts.Size
	if size <= 0 {
		size = DefaultSize
	}
	memory, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	if opts.DB != nil {
		_, err = opts.DB.ExecContext(ctx, Schema)
		if err != nil {
			return nil, fmt.Errorf("create cache table: %w", err)
		}
	}
	return &Cache{
		memory: memory,
		db:     opts.DB,
		now:    time.Now,
	}, nil
}

// NormalizeKey makes equivalent urls share a cache entry. Keys that are not
// urls are returned unchanged.
func NormalizeKey(key string) string {
	normalized, err := purell.NormalizeURLString(
		key,
		purell.FlagsSafe|purell.FlagSortQuery|purell.FlagRemoveFragment,
	)
	if err != nil {
		return key
	}
	return normalized
}

func (c *Cache) lookup(ctx context.Context, key string) (entry, bool) {
	e, ok := c.memory.Get(key)
	if ok {
		return e, true
	}
	if c.db == nil {
		return entry{}, false
	}

	var value []byte
	var expiresAt int64
	err := c.db.QueryRowContext(
		ctx,
		"select value, expires_at from route_cache where key = ?",
		key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return entry{}, false
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to read cache entry", "key", key, "err", err)
		return entry{}, false
	}

	e = entry{value: value, expiresAt: time.UnixMilli(expiresAt)}
	c.memory.Add(key, e)
	return e, true
}

func (c *Cache) store(ctx context.Context, key string, e entry) {
	c.memory.Add(key, e)
	if c.db == nil {
		return
	}
	_, err := c.db.ExecContext(
		ctx,
		`insert into route_cache(key, value, expires_at) values (?, ?, ?)
		on conflict(key) do update set value = excluded.value, expires_at = excluded.expires_at`,
		key, e.value, e.expiresAt.UnixMilli(),
	)
	if err != nil {
		slog.WarnContext(ctx, "failed to persist cache entry", "key", key, "err", err)
	}
}

func (c *Cache) fresh(e entry) bool {
	return c.now().Before(e.expiresAt)
}

// Purge drops every entry from both tiers.
func (c *Cache) Purge(ctx context.Context) error {
	c.memory.Purge()
	if c.db == nil {
		return nil
	}
	_, err := c.db.ExecContext(ctx, "delete from route_cache")
	return err
}

// TryGet returns the value cached under key if it has not expired, otherwise
// it calls produce and caches the result for ttl. Concurrent callers for the
// same key share a single call to produce. When produce fails and
// allowStaleOnError is set, an expired value is returned instead of the
// error if one is still around.
func TryGet[T any](
	ctx context.Context,
	c *Cache,
	key string,
	produce func(ctx context.Context) (T, error),
	ttl time.Duration,
	allowStaleOnError bool,
) (T, error) {
	ctx, span := tracer.Start(ctx, "TryGet")
	defer span.End()

	var zero T
	key = NormalizeKey(key)
	span.SetAttributes(attribute.String("key", key))
	attrs := metric.WithAttributes(attribute.String("key", key))

	e, found := c.lookup(ctx, key)
	if found && c.fresh(e) {
		var out T
		err := json.Unmarshal(e.value, &out)
		if err == nil {
			hitCounter.Add(ctx, 1, attrs)
			return out, nil
		}
		slog.WarnContext(ctx, "discarding undecodable cache entry", "key", key, "err", err)
	}
	missCounter.Add(ctx, 1, attrs)

	// the flight outlives its callers, produce is bounded by its own timeouts.
	flightCtx := context.WithoutCancel(ctx)
	flight := c.group.DoChan(key, func() (any, error) {
		// another flight may have finished between the lookup and now.
		e, ok := c.lookup(flightCtx, key)
		if ok && c.fresh(e) {
			return e.value, nil
		}

		value, err := produce(flightCtx)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode cache entry: %w", err)
		}
		c.store(flightCtx, key, entry{value: encoded, expiresAt: c.now().Add(ttl)})
		return encoded, nil
	})

	var result any
	var err error
	select {
	case res := <-flight:
		result, err = res.Val, res.Err
		span.SetAttributes(attribute.Bool("shared", res.Shared))
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err != nil {
		errorCounter.Add(ctx, 1, attrs)
		span.RecordError(err)

		if allowStaleOnError {
			stale, ok := c.lookup(ctx, key)
			if ok {
				var out T
				decodeErr := json.Unmarshal(stale.value, &out)
				if decodeErr == nil {
					slog.WarnContext(ctx, "serving stale cache entry", "key", key, "err", err)
					return out, nil
				}
			}
		}

		span.SetStatus(codes.Error, "produce failed")
		return zero, err
	}

	var out T
	err = json.Unmarshal(result.([]byte), &out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return zero, fmt.Errorf("decode cache entry: %w", err)
	}
	return out, nil
}
