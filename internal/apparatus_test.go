package internal

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApparatusFetchNewChapters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	sent := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	mailbox := &fakeMailbox{mails: []Mail{
		{Subject: `pirateaba posted "10.01"`, Body: "<p>wrong serial</p>", Date: sent},
		{
			Subject: `New post: "Apparatus Of Change - Chapter 12"`,
			Body:    `<html><body><table><tr><td><div><span><div><div><div><div>header</div><div><p>The machine hummed to life.</p></div></div></div></div></span></div></td></tr></table></body></html>`,
			Date:    sent,
		},
	}}

	chapters, err := NewApparatus(mailbox).FetchNewChapters(ctx, &Book{ID: uuid.New(), Metadata: BookApparatus{}}, nil)
	require.NoError(t, err)
	require.Len(t, chapters, 1)
	assert.Equal(t, "Chapter 12", chapters[0].Title)
	assert.Equal(t, ChapterApparatus{}, chapters[0].Metadata)
	require.NotNil(t, chapters[0].HTML, "digest chapters carry their body inline")
	assert.Contains(t, *chapters[0].HTML, "The machine hummed to life.")
	assert.NotContains(t, *chapters[0].HTML, "header")
	require.NotNil(t, chapters[0].PublishedAt)
	assert.Equal(t, sent, *chapters[0].PublishedAt)
}

func TestDailyGrindFetchNewChapters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	sent := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	mailbox := &fakeMailbox{mails: []Mail{{
		Subject: `New post: "The Daily Grind - Shift 340"`,
		Body:    `<html><body><table><tr><td><div><span><div><div><div><div>header</div><div><p>Coffee first.</p></div></div></div></div></span></div></td></tr></table></body></html>`,
		Date:    sent,
	}}}

	chapters, err := NewDailyGrind(mailbox).FetchNewChapters(ctx, &Book{ID: uuid.New(), Metadata: BookDailyGrind{}}, nil)
	require.NoError(t, err)
	require.Len(t, chapters, 1)
	assert.Equal(t, "Shift 340", chapters[0].Title)
	assert.Equal(t, ChapterDailyGrind{}, chapters[0].Metadata)
	require.NotNil(t, chapters[0].HTML)
	assert.Contains(t, *chapters[0].HTML, "Coffee first.")
}

func TestDigestTitle(t *testing.T) {
	t.Parallel()

	title, err := digestTitle(`New post: "Apparatus Of Change - Chapter 12"`, "Apparatus Of Change - ")
	require.NoError(t, err)
	assert.Equal(t, "Chapter 12", title)

	// An unexpected prefix stays in place rather than being mangled.
	title, err = digestTitle(`New post: "Bonus: Chapter 12"`, "Apparatus Of Change - ")
	require.NoError(t, err)
	assert.Equal(t, "Bonus: Chapter 12", title)

	_, err = digestTitle("no quotes at all", "x")
	assert.Error(t, err)
	_, err = digestTitle(`only "one quote`, "x")
	assert.Error(t, err)
}

func TestDigestBodyMissingContent(t *testing.T) {
	t.Parallel()

	_, err := digestBody(`<html><body><p>plain text mail</p></body></html>`)
	assert.ErrorContains(t, err, "no post content")
}
