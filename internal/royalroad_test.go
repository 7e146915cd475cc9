package internal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const _royalroadFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>My Fiction</title>
    <item>
      <title>My Fiction - Chapter One</title>
      <link>%[1]s/fiction/12345/my-fiction/chapter/100/</link>
      <pubDate>Mon, 01 Jan 2024 10:00:00 +0000</pubDate>
    </item>
    <item>
      <title>My Fiction - Chapter Two</title>
      <link>%[1]s/fiction/12345/my-fiction/chapter/200/</link>
      <pubDate>Mon, 08 Jan 2024 10:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

func testRoyalRoad(t *testing.T, handler http.Handler) *RoyalRoad {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	rr := NewRoyalRoad()
	rr.upstream = server.Client()
	rr.base = server.URL
	return rr
}

func TestRoyalRoadFetchNewChapters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mux := http.NewServeMux()
	var rr *RoyalRoad
	mux.HandleFunc("/syndication/12345", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, _royalroadFeed, rr.base)
	})
	rr = testRoyalRoad(t, mux)

	book := &Book{ID: uuid.New(), Metadata: BookRoyalRoad{BookID: 12345}}

	chapters, err := rr.FetchNewChapters(ctx, book, nil)
	require.NoError(t, err)
	require.Len(t, chapters, 2)
	// The feed prefixes every title with the fiction's name, which the
	// chapter row doesn't want.
	assert.Equal(t, "Chapter One", chapters[0].Title)
	assert.Equal(t, ChapterRoyalRoad{BookID: 12345, ChapterID: 100}, chapters[0].Metadata)
	require.NotNil(t, chapters[0].PublishedAt)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), *chapters[0].PublishedAt)
	assert.Equal(t, ChapterRoyalRoad{BookID: 12345, ChapterID: 200}, chapters[1].Metadata)

	// Entries at or before the cursor are already known.
	cursor := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	chapters, err = rr.FetchNewChapters(ctx, book, &cursor)
	require.NoError(t, err)
	require.Len(t, chapters, 1)
	assert.Equal(t, "Chapter Two", chapters[0].Title)

	cursor = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	chapters, err = rr.FetchNewChapters(ctx, book, &cursor)
	require.NoError(t, err)
	assert.Empty(t, chapters)
}

func TestRoyalRoadFetchNewChaptersWrongBook(t *testing.T) {
	t.Parallel()
	rr := testRoyalRoad(t, http.NotFoundHandler())
	_, err := rr.FetchNewChapters(context.Background(), &Book{ID: uuid.New(), Metadata: BookPale{}}, nil)
	assert.Error(t, err)
}

func TestRoyalRoadFetchChapterBody(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mux := http.NewServeMux()
	mux.HandleFunc("/fiction/chapter/100", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<div class="nav">junk</div>
			<div class="chapter-inner chapter-content"><p>Once upon a time.</p></div>
		</body></html>`)
	})
	rr := testRoyalRoad(t, mux)

	chapter := &Chapter{ID: uuid.New(), Metadata: ChapterRoyalRoad{BookID: 12345, ChapterID: 100}}
	html, err := rr.FetchChapterBody(ctx, chapter)
	require.NoError(t, err)
	assert.Contains(t, html, "Once upon a time.")
	assert.Contains(t, html, "chapter-inner")
	assert.NotContains(t, html, "junk")
}

func TestRoyalRoadFetchChapterBodyMissingContent(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/fiction/chapter/100", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>not a chapter page</p></body></html>`)
	})
	rr := testRoyalRoad(t, mux)

	chapter := &Chapter{ID: uuid.New(), Metadata: ChapterRoyalRoad{ChapterID: 100}}
	_, err := rr.FetchChapterBody(context.Background(), chapter)
	assert.ErrorContains(t, err, "no chapter content")
}

func TestLastPathSegmentID(t *testing.T) {
	t.Parallel()

	id, err := lastPathSegmentID("https://www.royalroad.com/fiction/12345/f/chapter/678/")
	require.NoError(t, err)
	assert.Equal(t, int64(678), id)

	id, err = lastPathSegmentID("https://www.royalroad.com/fiction/chapter/678")
	require.NoError(t, err)
	assert.Equal(t, int64(678), id)

	_, err = lastPathSegmentID("https://www.royalroad.com/fiction/chapter/not-a-number")
	assert.Error(t, err)
}
