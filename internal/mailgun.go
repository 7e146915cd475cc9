package internal

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mailgun/mailgun-go/v4"
)

// Mailer sends a converted document to a subscriber's device.
type Mailer interface {
	SendEPUB(ctx context.Context, to, subject, filename string, epub []byte) error
}

// MailgunMailer delivers epubs as email attachments through Mailgun.
type MailgunMailer struct {
	mg   mailgun.Mailgun
	from string
}

var _ Mailer = (*MailgunMailer)(nil)

// NewMailgunMailer creates a mailer. The endpoint bakes the sending domain
// into its final path segment, e.g.
// https://api.mailgun.net/v3/mg.example.com.
func NewMailgunMailer(endpoint, apiKey, from string) (*MailgunMailer, error) {
	endpoint = strings.TrimRight(endpoint, "/")
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing mailgun endpoint: %w", err)
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	domain := segments[len(segments)-1]
	if domain == "" {
		return nil, fmt.Errorf("mailgun endpoint %q carries no domain", endpoint)
	}

	mg := mailgun.NewMailgun(domain, apiKey)
	if base := strings.TrimSuffix(endpoint, "/"+domain); base != "" {
		mg.SetAPIBase(base)
	}
	return &MailgunMailer{mg: mg, from: from}, nil
}

// SendEPUB emails the epub as an attachment. Subject and body text are the
// same line; Kindle inboxes only surface the attachment anyway.
func (m *MailgunMailer) SendEPUB(ctx context.Context, to, subject, filename string, epub []byte) error {
	msg := mailgun.NewMessage(m.from, subject, subject, to)
	msg.AddBufferAttachment(filename, epub)
	_, _, err := m.mg.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("sending email to %s: %w", to, err)
	}
	return nil
}
