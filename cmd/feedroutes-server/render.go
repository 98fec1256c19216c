package main

import (
	"time"

	"feedroutes/lib/feed"

	"github.com/gorilla/feeds"
)

// toFeeds converts a route result into the gorilla/feeds model, now is used
// as the feed timestamp when no item carries a date.
func toFeeds(out feed.Feed, now time.Time) *feeds.Feed {
	result := &feeds.Feed{
		Title:       out.Title,
		Link:        &feeds.Link{Href: out.Link},
		Description: out.Description,
		Id:          out.Link,
	}

	var latest time.Time
	for _, item := range out.Items {
		id := item.GUID
		if id == "" {
			id = item.Link
		}
		converted := &feeds.Item{
			Title:       item.Title,
			Link:        &feeds.Link{Href: item.Link},
			Description: item.Description,
			Id:          id,
		}
		if item.Author != "" {
			converted.Author = &feeds.Author{Name: item.Author}
		}
		if item.PubDate != nil {
			converted.Created = *item.PubDate
			if item.PubDate.After(latest) {
				latest = *item.PubDate
			}
		}
		result.Items = append(result.Items, converted)
	}

	if latest.IsZero() {
		latest = now
	}
	result.Created = latest
	result.Updated = latest
	return result
}

type format struct {
	contentType string
	render      func(*feeds.Feed) (string, error)
}

var formats = map[string]format{
	"rss": {
		contentType: "application/rss+xml; charset=utf-8",
		render:      (*feeds.Feed).ToRss,
	},
	"atom": {
		contentType: "application/atom+xml; charset=utf-8",
		render:      (*feeds.Feed).ToAtom,
	},
	"json": {
		contentType: "application/feed+json; charset=utf-8",
		render:      (*feeds.Feed).ToJSON,
	},
}
