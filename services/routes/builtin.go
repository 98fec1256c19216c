package routes

import (
	"context"
	"time"

	"feedroutes/lib/browser"
	"feedroutes/lib/feed"
	"feedroutes/lib/relay"
	"feedroutes/lib/restyutil"
	"feedroutes/lib/routecache"
	"feedroutes/services/copymanga"
	"feedroutes/services/nga"
	"feedroutes/services/tachidesk"
	"feedroutes/services/wenku8"
)

type Dependencies struct {
	Fetcher browser.Fetcher
	Cache   *routecache.Cache
	TTL     time.Duration
	Relay   relay.Config
	NGA     nga.Config
	// HttpDump receives request dumps of direct http routes, may be nil.
	HttpDump restyutil.InstrumentOutput
}

// Builtin registers every route this module ships.
func Builtin(deps Dependencies) Registry {
	ngaService := nga.NewService(deps.Fetcher, deps.Cache, deps.TTL, deps.NGA)
	copymangaService := copymanga.NewService(deps.Fetcher, deps.Cache, deps.TTL, deps.Relay)
	wenku8Service := wenku8.NewService(deps.Fetcher, deps.Cache, deps.TTL)
	tachideskService := tachidesk.NewService(deps.Cache, deps.TTL, deps.HttpDump)

	return NewRegistry(
		Route{
			Name:    "nga/post2",
			Title:   "NGA 帖子",
			Example: "/nga/post2/18449558",
			Params: []Param{
				{Name: "tid", Description: "帖子 id, 可在帖子 URL 找到"},
				{Name: "authorId", Description: "作者 id", Optional: true},
			},
			Handler: func(ctx context.Context, params map[string]string) (feed.Feed, error) {
				return ngaService.Thread(ctx, params["tid"], params["authorId"])
			},
		},
		Route{
			Name:    "copymanga/author",
			Title:   "拷贝漫画 作者作品",
			Example: "/copymanga/author/hiroyuki",
			Params: []Param{
				{Name: "id", Description: "作者ID"},
			},
			Handler: func(ctx context.Context, params map[string]string) (feed.Feed, error) {
				return copymangaService.Author(ctx, params["id"])
			},
		},
		Route{
			Name:    "wenku8/chapter2",
			Title:   "轻小说文库 章节",
			Example: "/wenku8/chapter2/74",
			Params: []Param{
				{Name: "id", Description: "小说 id, 可在对应小说页 URL 中找到"},
			},
			Handler: func(ctx context.Context, params map[string]string) (feed.Feed, error) {
				return wenku8Service.Chapters(ctx, params["id"])
			},
		},
		Route{
			Name:    "tachidesk-server",
			Title:   "Tachidesk-server 章节",
			Example: "/tachidesk-server/1/192.168.50.50:14567",
			Params: []Param{
				{Name: "id", Description: "漫画 id", Optional: true, Default: tachidesk.DefaultID},
				{Name: "site", Description: "服务器地址", Optional: true, Default: tachidesk.DefaultSite},
			},
			Handler: func(ctx context.Context, params map[string]string) (feed.Feed, error) {
				return tachideskService.Manga(ctx, params["id"], params["site"])
			},
		},
	)
}
