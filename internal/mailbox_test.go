package internal

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMail(t *testing.T) {
	t.Parallel()

	received := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	raw := strings.Join([]string{
		"From: bingo@patreon.com",
		"Subject: New post: \"Apparatus Of Change - Chapter 12\"",
		"Date: Thu, 01 Feb 2024 09:30:00 +0000",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<div><p>hello</p></div>",
	}, "\r\n")

	mail, err := parseMail([]byte(raw), received)
	require.NoError(t, err)
	assert.Equal(t, `New post: "Apparatus Of Change - Chapter 12"`, mail.Subject)
	assert.Contains(t, mail.Body, "<p>hello</p>")
	assert.Equal(t, time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC), mail.Date)
	assert.Equal(t, received, mail.ReceivedAt)
}

func TestParseMailFallbacks(t *testing.T) {
	t.Parallel()

	received := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

	// No HTML part: the text part stands in. No parseable Date header: the
	// bucket timestamp stands in.
	raw := strings.Join([]string{
		"From: bingo@patreon.com",
		"Subject: plain",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"just text",
	}, "\r\n")

	mail, err := parseMail([]byte(raw), received)
	require.NoError(t, err)
	assert.Equal(t, "plain", mail.Subject)
	assert.Contains(t, mail.Body, "just text")
	assert.Equal(t, received, mail.Date)
}
