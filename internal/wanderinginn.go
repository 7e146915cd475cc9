package internal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

// WanderingInn discovers The Wandering Inn's Patreon chapters from inbound
// email. Each announcement mail carries a post password and one or more
// links to password-protected chapters on the public site.
type WanderingInn struct {
	mailbox   Mailbox
	transport http.RoundTripper
	loginURL  string
}

var (
	_ NewChapterProvider  = (*WanderingInn)(nil)
	_ ChapterBodyProvider = (*WanderingInn)(nil)
)

// NewWanderingInn creates a provider reading announcements from the given
// mailbox.
func NewWanderingInn(mailbox Mailbox) *WanderingInn {
	return &WanderingInn{
		mailbox: mailbox,
		transport: scopedTransport{
			host: "wanderinginn.com",
			RoundTripper: throttledTransport{
				RoundTripper: headerTransport{
					key:          "User-Agent",
					value:        _userAgent,
					RoundTripper: http.DefaultTransport,
				},
				Limiter: rate.NewLimiter(rate.Limit(1), 1),
			},
		},
		loginURL: "https://wanderinginn.com/wp-login.php?action=postpass",
	}
}

// FetchNewChapters scans mail received after the cursor for pirateaba
// announcements and emits one chapter per linked post.
func (w *WanderingInn) FetchNewChapters(ctx context.Context, _ *Book, lastSeen *time.Time) ([]NewChapter, error) {
	mails, err := w.mailbox.ListNewerThan(ctx, lastSeen)
	if err != nil {
		return nil, err
	}

	var chapters []NewChapter
	for _, mail := range mails {
		if !strings.Contains(strings.ToLower(mail.Subject), "pirateaba") {
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(mail.Body))
		if err != nil {
			return nil, fmt.Errorf("parsing announcement: %w", err)
		}

		password := extractPassword(doc)
		published := mail.Date

		doc.Find("div > p a").Each(func(_ int, sel *goquery.Selection) {
			href, ok := sel.Attr("href")
			if !ok {
				return
			}
			title := lastPathSegment(href)
			if title == "" {
				return
			}
			chapters = append(chapters, NewChapter{
				Title: title,
				Metadata: ChapterWanderingInn{
					URL:      href,
					Password: password,
				},
				PublishedAt: &published,
			})
		})
	}
	return chapters, nil
}

// FetchChapterBody submits the post password (when the announcement had
// one) and extracts the chapter's entry content. A fresh cookie jar per
// call keeps password sessions isolated.
func (w *WanderingInn) FetchChapterBody(ctx context.Context, chapter *Chapter) (string, error) {
	md, ok := chapter.Metadata.(ChapterWanderingInn)
	if !ok {
		return "", fmt.Errorf("chapter %s is not a wandering inn chapter", chapter.ID)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return "", err
	}
	client := &http.Client{
		Jar:       jar,
		Timeout:   30 * time.Second,
		Transport: w.transport,
	}

	if md.Password != nil {
		form := url.Values{
			"post_password": {*md.Password},
			"Submit":        {"Enter"},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.loginURL, strings.NewReader(form.Encode()))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("submitting post password: %w", err)
		}
		resp.Body.Close()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, md.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching chapter: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", statusErr(resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parsing chapter: %w", err)
	}
	return extractEntryContent(doc, md.URL)
}

// extractPassword digs the post password out of an announcement. It
// usually sits in the element after a "password" paragraph, but some mails
// flatten it into the same run of text.
func extractPassword(doc *goquery.Document) *string {
	var password string
	doc.Find("div > p").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !strings.Contains(strings.ToLower(sel.Text()), "password") {
			return true
		}
		if next := sel.Next(); next.Length() > 0 {
			if text := strings.TrimSpace(next.Text()); text != "" {
				password = text
				return false
			}
		}
		fields := strings.Fields(sel.Text())
		for i, field := range fields {
			if strings.Contains(strings.ToLower(field), "password") && i+1 < len(fields) {
				password = strings.Trim(fields[i+1], `:"'`)
				return false
			}
		}
		return true
	})
	if password == "" {
		return nil
	}
	return &password
}

// lastPathSegment returns the last non-empty path segment of a URL, which
// doubles as the chapter title in announcement links.
func lastPathSegment(href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	segments := strings.Split(parsed.Path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return segments[i]
		}
	}
	return ""
}
