package feed

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Item is one normalized entry of a route result. Link is always an
// absolute http(s) url.
type Item struct {
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Author      string     `json:"author,omitempty"`
	Description string     `json:"description,omitempty"`
	PubDate     *time.Time `json:"pubDate,omitempty"`
	GUID        string     `json:"guid,omitempty"`
}

func (i Item) Validate() error {
	if !IsAbsolute(i.Link) {
		return fmt.Errorf("item '%s' has a non-absolute link '%s'", i.Title, i.Link)
	}
	return nil
}

// Feed is the shape every route hands back to the serializer.
type Feed struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description,omitempty"`
	Items       []Item `json:"item"`
}

// RawPage is the markup of a single fetched page, it is discarded once
// extraction finishes.
type RawPage struct {
	Markup string
	URL    string
}

func IsAbsolute(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Canonicalize resolves href against base after removing any of the given
// prefixes (relay addresses, the base itself) from the front of it.
func Canonicalize(base, href string, strip ...string) (string, error) {
	for _, prefix := range strip {
		if prefix == "" {
			continue
		}
		href = strings.TrimPrefix(href, prefix)
	}
	baseUrl, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	resolved := baseUrl.ResolveReference(ref)
	if !IsAbsolute(resolved.String()) {
		return "", fmt.Errorf("could not make '%s' absolute against '%s'", href, base)
	}
	return resolved.String(), nil
}
