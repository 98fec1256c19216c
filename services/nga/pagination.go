package nga

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Pagination struct {
	ThreadID string
	AuthorID string
	// LastPage is 1 based and at least 1.
	LastPage int
}

var pagerRegex = regexp.MustCompile(`\{0:'/read\.php\?tid=(\d+).*?',1:(\d+),.*?\}`)

// lastPageFromMarkup reads the page count from the pager script inside
// #pagebtop, threads without a pager have a single page.
func lastPageFromMarkup(markup string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return 1
	}
	nav, err := doc.Find("#pagebtop").Html()
	if err != nil {
		return 1
	}
	match := pagerRegex.FindStringSubmatch(nav)
	if match == nil {
		return 1
	}
	last, err := strconv.Atoi(match[2])
	if err != nil || last < 1 {
		return 1
	}
	return last
}

// ResolveLastPage loads the first page of the thread and reads how many
// pages it has.
func (s Service) ResolveLastPage(ctx context.Context, threadID, authorID string) (Pagination, error) {
	ctx, span := tracer.Start(ctx, "ResolveLastPage")
	defer span.End()

	raw, err := s.fetchPage(ctx, threadID, authorID, 1)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Pagination{}, err
	}

	last := lastPageFromMarkup(raw.Markup)
	span.SetAttributes(attribute.Int("last_page", last))

	return Pagination{
		ThreadID: threadID,
		AuthorID: authorID,
		LastPage: last,
	}, nil
}
