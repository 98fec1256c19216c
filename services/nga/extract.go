package nga

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"feedroutes/lib/bbcode"
	"feedroutes/lib/feed"
	"feedroutes/lib/htmlutil"
	"feedroutes/lib/timezone"

	"github.com/PuerkitoBio/goquery"
	"github.com/titanous/json5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const postTimeLayout = "2006-01-02 15:04"

var (
	identityMapRegex = regexp.MustCompile(`(?m)commonui\.userInfo\.setAll\((.*)\)$`)
	posterUIDRegex   = regexp.MustCompile(`&uid=(-?\d+)$`)
)

// identities maps poster uid to the poster's entry in the page's user info
// table.
type identities map[string]any

func parseIdentities(doc *goquery.Document) (identities, error) {
	match := identityMapRegex.FindStringSubmatch(doc.Find("script").Text())
	if match == nil {
		return nil, ErrIdentityMap
	}
	var out identities
	err := json5.Unmarshal([]byte(match[1]), &out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIdentityMap, err)
	}
	return out, nil
}

func (ids identities) username(uid string) (string, error) {
	entry, ok := ids[uid].(map[string]any)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPoster, uid)
	}
	switch name := entry["username"].(type) {
	case string:
		return name, nil
	case float64:
		// numeric usernames come through as numbers.
		return fmt.Sprint(name), nil
	}
	return "", fmt.Errorf("%w: %s has no username", ErrUnknownPoster, uid)
}

func posterUID(post *goquery.Selection) (string, error) {
	href, _ := post.Find(".posterinfo a").First().Attr("href")
	match := posterUIDRegex.FindStringSubmatch(href)
	if match == nil {
		return "", fmt.Errorf("%w: no uid in poster link %q", ErrUnknownPoster, href)
	}
	return match[1], nil
}

// ExtractThread turns a rendered thread page into a feed of its posts.
func ExtractThread(ctx context.Context, markup string, pagination Pagination) (feed.Feed, error) {
	ctx, span := tracer.Start(ctx, "ExtractThread")
	defer span.End()

	fail := func(err error) (feed.Feed, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return feed.Feed{}, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return fail(err)
	}

	ids, err := parseIdentities(doc)
	if err != nil {
		return fail(err)
	}

	authorName := ""
	if pagination.AuthorID != "" {
		authorName, err = ids.username(pagination.AuthorID)
		if err != nil {
			return fail(err)
		}
	}

	var items []feed.Item
	var extractErr error
	doc.Find("#m_posts_c").Children().Filter("table").EachWithBreak(func(_ int, post *goquery.Selection) bool {
		poster := authorName
		if poster == "" {
			uid, err := posterUID(post)
			if err != nil {
				extractErr = err
				return false
			}
			poster, err = ids.username(uid)
			if err != nil {
				extractErr = err
				return false
			}
		}

		content := post.Find(".postcontent").First()
		source, err := content.Html()
		if err != nil {
			extractErr = err
			return false
		}
		description := bbcode.Transform(source)
		postID, _ := content.Attr("id")

		item := feed.Item{
			Title:       htmlutil.FragmentText(description),
			Author:      poster,
			Link:        PageURL(pagination.ThreadID, pagination.AuthorID, pagination.LastPage, postID),
			Description: description,
			GUID:        postID,
		}

		postedAt := strings.TrimSpace(post.Find(".postInfo > span").First().Text())
		published, err := timezone.Parse(postTimeLayout, postedAt)
		if err != nil {
			slog.DebugContext(ctx, "unparsable post time", "post", postID, "time", postedAt, "err", err)
		} else {
			item.PubDate = &published
		}

		items = append(items, item)
		return true
	})
	if extractErr != nil {
		return fail(extractErr)
	}

	span.SetAttributes(attribute.Int("items", len(items)))

	title := doc.Find("title").Text()
	feedTitle := "NGA " + title
	if authorName != "" {
		feedTitle = "NGA " + authorName + " " + title
	}

	return feed.Feed{
		Title: feedTitle,
		Link:  PageURL(pagination.ThreadID, pagination.AuthorID, pagination.LastPage, ""),
		Items: items,
	}, nil
}
