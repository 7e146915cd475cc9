package internal

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"
)

// RoyalRoad discovers chapters through the site's RSS syndication feed and
// fetches bodies from chapter pages.
type RoyalRoad struct {
	upstream *http.Client
	parser   *gofeed.Parser
	base     string
}

var (
	_ NewChapterProvider  = (*RoyalRoad)(nil)
	_ ChapterBodyProvider = (*RoyalRoad)(nil)
)

// NewRoyalRoad creates a Royal Road provider with its own polite upstream
// client.
func NewRoyalRoad() *RoyalRoad {
	return &RoyalRoad{
		upstream: NewUpstream("www.royalroad.com", rate.Limit(1)),
		parser:   gofeed.NewParser(),
		base:     "https://www.royalroad.com",
	}
}

// FetchNewChapters lists feed entries published strictly after the cursor.
func (rr *RoyalRoad) FetchNewChapters(ctx context.Context, book *Book, lastSeen *time.Time) ([]NewChapter, error) {
	md, ok := book.Metadata.(BookRoyalRoad)
	if !ok {
		return nil, fmt.Errorf("book %s is not a royalroad book", book.ID)
	}

	feed, err := rr.fetchFeed(ctx, fmt.Sprintf("%s/syndication/%d", rr.base, md.BookID))
	if err != nil {
		return nil, err
	}

	var chapters []NewChapter
	for _, item := range feed.Items {
		if item.PublishedParsed == nil {
			continue
		}
		published := item.PublishedParsed.UTC()
		if lastSeen != nil && !published.After(*lastSeen) {
			continue
		}
		chapterID, err := lastPathSegmentID(item.Link)
		if err != nil {
			return nil, fmt.Errorf("parsing chapter link %q: %w", item.Link, err)
		}

		// Feed titles look like "Fiction Title - Chapter Title".
		title := item.Title
		if _, after, found := strings.Cut(item.Title, " - "); found {
			title = after
		}

		chapters = append(chapters, NewChapter{
			Title: title,
			Metadata: ChapterRoyalRoad{
				BookID:    md.BookID,
				ChapterID: chapterID,
			},
			PublishedAt: &published,
		})
	}
	return chapters, nil
}

// FetchChapterBody fetches the chapter page and extracts the reader
// content.
func (rr *RoyalRoad) FetchChapterBody(ctx context.Context, chapter *Chapter) (string, error) {
	md, ok := chapter.Metadata.(ChapterRoyalRoad)
	if !ok {
		return "", fmt.Errorf("chapter %s is not a royalroad chapter", chapter.ID)
	}

	url := fmt.Sprintf("%s/fiction/chapter/%d", rr.base, md.ChapterID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := rr.upstream.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching chapter page: %w", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parsing chapter page: %w", err)
	}
	inner := doc.Find("div.chapter-inner").First()
	if inner.Length() == 0 {
		return "", fmt.Errorf("no chapter content at %s", url)
	}
	html, err := goquery.OuterHtml(inner)
	if err != nil {
		return "", err
	}
	return html, nil
}

func (rr *RoyalRoad) fetchFeed(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := rr.upstream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	feed, err := rr.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}
	return feed, nil
}

// lastPathSegmentID parses the numeric ID in the final path segment of a
// chapter link.
func lastPathSegmentID(link string) (int64, error) {
	trimmed := strings.TrimRight(link, "/")
	segment := trimmed
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		segment = trimmed[idx+1:]
	}
	return strconv.ParseInt(segment, 10, 64)
}
