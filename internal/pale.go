package internal

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"
)

// Pale discovers chapters through the serial's WordPress feed and fetches
// bodies from the linked posts.
type Pale struct {
	upstream *http.Client
	parser   *gofeed.Parser
	feedURL  string
}

var (
	_ NewChapterProvider  = (*Pale)(nil)
	_ ChapterBodyProvider = (*Pale)(nil)
)

// NewPale creates a Pale provider with its own polite upstream client.
func NewPale() *Pale {
	return &Pale{
		upstream: NewUpstream("palewebserial.wordpress.com", rate.Limit(1)),
		parser:   gofeed.NewParser(),
		feedURL:  "https://palewebserial.wordpress.com/feed/",
	}
}

// FetchNewChapters lists feed entries published strictly after the cursor.
func (p *Pale) FetchNewChapters(ctx context.Context, _ *Book, lastSeen *time.Time) ([]NewChapter, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.feedURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.upstream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	feed, err := p.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
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
		chapters = append(chapters, NewChapter{
			Title:       item.Title,
			Metadata:    ChapterPale{URL: item.Link},
			PublishedAt: &published,
		})
	}
	return chapters, nil
}

// FetchChapterBody fetches the post and extracts the entry content.
func (p *Pale) FetchChapterBody(ctx context.Context, chapter *Chapter) (string, error) {
	md, ok := chapter.Metadata.(ChapterPale)
	if !ok {
		return "", fmt.Errorf("chapter %s is not a pale chapter", chapter.ID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, md.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.upstream.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching chapter: %w", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parsing chapter: %w", err)
	}
	return extractEntryContent(doc, md.URL)
}

// extractEntryContent concatenates a WordPress post's entry-content
// children, skipping the sharing widget and the next/previous chapter
// navigation links.
func extractEntryContent(doc *goquery.Document, url string) (string, error) {
	var sb strings.Builder
	var selErr error
	doc.Find("div.entry-content > *").Each(func(_ int, sel *goquery.Selection) {
		if id, _ := sel.Attr("id"); id == "jp-post-flair" {
			return
		}
		text := sel.Text()
		if strings.Contains(text, "Next Chapter") || strings.Contains(text, "Previous Chapter") {
			return
		}
		html, err := goquery.OuterHtml(sel)
		if err != nil {
			selErr = err
			return
		}
		sb.WriteString(html)
	})
	if selErr != nil {
		return "", selErr
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no chapter content at %s", url)
	}
	return sb.String(), nil
}
