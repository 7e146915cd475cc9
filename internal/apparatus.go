package internal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Patreon digest emails carry the full chapter inline, so these providers
// are discovery-only: the body is set at discovery time and the chapter
// never passes through hydration.

// Apparatus discovers Apparatus of Change chapters from inbound Patreon
// email.
type Apparatus struct {
	mailbox Mailbox
}

// DailyGrind discovers The Daily Grind chapters from inbound Patreon
// email.
type DailyGrind struct {
	mailbox Mailbox
}

var (
	_ NewChapterProvider = (*Apparatus)(nil)
	_ NewChapterProvider = (*DailyGrind)(nil)
)

// NewApparatus creates a provider reading digests from the given mailbox.
func NewApparatus(mailbox Mailbox) *Apparatus {
	return &Apparatus{mailbox: mailbox}
}

// NewDailyGrind creates a provider reading digests from the given mailbox.
func NewDailyGrind(mailbox Mailbox) *DailyGrind {
	return &DailyGrind{mailbox: mailbox}
}

// FetchNewChapters scans mail received after the cursor for Apparatus of
// Change digests.
func (a *Apparatus) FetchNewChapters(ctx context.Context, _ *Book, lastSeen *time.Time) ([]NewChapter, error) {
	return fetchDigestChapters(ctx, a.mailbox, lastSeen, "apparatus", "Apparatus Of Change - ", ChapterApparatus{})
}

// FetchNewChapters scans mail received after the cursor for Daily Grind
// digests.
func (d *DailyGrind) FetchNewChapters(ctx context.Context, _ *Book, lastSeen *time.Time) ([]NewChapter, error) {
	return fetchDigestChapters(ctx, d.mailbox, lastSeen, "daily grind", "The Daily Grind - ", ChapterDailyGrind{})
}

func fetchDigestChapters(ctx context.Context, mailbox Mailbox, lastSeen *time.Time, subjectFilter, titlePrefix string, metadata ChapterMetadata) ([]NewChapter, error) {
	mails, err := mailbox.ListNewerThan(ctx, lastSeen)
	if err != nil {
		return nil, err
	}

	var chapters []NewChapter
	for _, mail := range mails {
		if !strings.Contains(strings.ToLower(mail.Subject), subjectFilter) {
			continue
		}
		title, err := digestTitle(mail.Subject, titlePrefix)
		if err != nil {
			return nil, err
		}
		body, err := digestBody(mail.Body)
		if err != nil {
			return nil, err
		}
		published := mail.Date
		chapters = append(chapters, NewChapter{
			Title:       title,
			Metadata:    metadata,
			HTML:        &body,
			PublishedAt: &published,
		})
	}
	return chapters, nil
}

// digestTitle takes the quoted post title out of a digest subject like
// `New post: "Apparatus Of Change - Chapter 12"`.
func digestTitle(subject, prefix string) (string, error) {
	start := strings.Index(subject, `"`)
	if start < 0 {
		return "", fmt.Errorf("no title in subject %q", subject)
	}
	end := strings.Index(subject[start+1:], `"`)
	if end < 0 {
		return "", fmt.Errorf("no title in subject %q", subject)
	}
	title := subject[start+1 : start+1+end]
	return strings.TrimPrefix(title, prefix), nil
}

// digestBody extracts the post content from Patreon's digest markup. The
// content sits in the element following the post header deep inside the
// layout table.
func digestBody(body string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parsing digest: %w", err)
	}
	content := doc.Find("td > div > span > div > div > div > div + div").First()
	if content.Length() == 0 {
		return "", fmt.Errorf("no post content in digest")
	}
	html, err := goquery.OuterHtml(content)
	if err != nil {
		return "", err
	}
	return html, nil
}
