package routes

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"feedroutes/lib/browser"
	"feedroutes/lib/relay"
	"feedroutes/lib/restyutil"
	"feedroutes/lib/routecache"
	"feedroutes/services/nga"

	_ "modernc.org/sqlite"
)

const DefaultTTL = 5 * time.Minute

type CacheConfig struct {
	TTLSeconds int `json:"ttl_seconds"`
	// Sqlite is the path of the persistent cache, empty keeps the cache in
	// memory only.
	Sqlite string `json:"sqlite"`
	Size   int    `json:"size"`
}

func (c CacheConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return DefaultTTL
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

type Config struct {
	Relay   relay.Config            `json:"relay"`
	NGA     nga.Config              `json:"nga"`
	Cache   CacheConfig             `json:"cache"`
	Browser browser.ChromedpOptions `json:"browser"`
}

// Open builds the builtin registry from cfg. The returned function releases
// the cache database.
func Open(ctx context.Context, cfg Config, httpDump restyutil.InstrumentOutput) (Registry, func(), error) {
	var db *sql.DB
	if cfg.Cache.Sqlite != "" {
		var err error
		db, err = sql.Open("sqlite", cfg.Cache.Sqlite)
		if err != nil {
			return Registry{}, nil, fmt.Errorf("open cache db: %w", err)
		}
	}
	closeDB := func() {
		if db == nil {
			return
		}
		err := db.Close()
		if err != nil {
			slog.Warn("failed to close cache db", "err", err)
		}
	}

	cache, err := routecache.New(ctx, routecache.Options{
		Size: cfg.Cache.Size,
		DB:   db,
	})
	if err != nil {
		closeDB()
		return Registry{}, nil, err
	}

	registry := Builtin(Dependencies{
		Fetcher:  browser.NewController(browser.ChromedpLauncher(cfg.Browser)),
		Cache:    cache,
		TTL:      cfg.Cache.TTL(),
		Relay:    cfg.Relay.WithEnv(),
		NGA:      cfg.NGA,
		HttpDump: httpDump,
	})
	return registry, closeDB, nil
}
