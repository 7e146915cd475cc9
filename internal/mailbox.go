package internal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/mail"
	"sort"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jhillyerd/enmime"
)

// Mail is one parsed inbound message.
type Mail struct {
	Subject string
	Body    string // preferred MIME part, usually text/html

	// Date is the sender's Date header; ReceivedAt is when the message
	// landed in the bucket. Listing filters on ReceivedAt, chapter
	// publication times come from Date.
	Date       time.Time
	ReceivedAt time.Time
}

// Mailbox lists inbound email received after a cursor. Patreon-gated
// serials are ingested this way: chapter announcements are emailed to an
// address that drops them into an object bucket.
type Mailbox interface {
	ListNewerThan(ctx context.Context, since *time.Time) ([]Mail, error)
}

// S3Mailbox reads inbound email from an S3 bucket.
type S3Mailbox struct {
	client *s3.Client
	bucket string
}

var _ Mailbox = (*S3Mailbox)(nil)

// NewS3Mailbox connects to the inbound email bucket with static
// credentials.
func NewS3Mailbox(ctx context.Context, bucket, accessKey, secretKey string) (*S3Mailbox, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return &S3Mailbox{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// ListNewerThan downloads and parses every object modified after since,
// oldest first.
func (m *S3Mailbox) ListNewerThan(ctx context.Context, since *time.Time) ([]Mail, error) {
	var mails []Mail

	paginator := s3.NewListObjectsV2Paginator(m.client, &s3.ListObjectsV2Input{
		Bucket: &m.bucket,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing bucket %s: %w", m.bucket, err)
		}
		for _, obj := range page.Contents {
			if obj.LastModified == nil || obj.Key == nil {
				continue
			}
			received := obj.LastModified.UTC()
			if since != nil && !received.After(*since) {
				continue
			}
			mail, err := m.fetch(ctx, *obj.Key, received)
			if err != nil {
				return nil, err
			}
			mails = append(mails, mail)
		}
	}

	sort.Slice(mails, func(i, j int) bool {
		return mails[i].ReceivedAt.Before(mails[j].ReceivedAt)
	})
	return mails, nil
}

func (m *S3Mailbox) fetch(ctx context.Context, key string, received time.Time) (Mail, error) {
	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &m.bucket,
		Key:    &key,
	})
	if err != nil {
		return Mail{}, fmt.Errorf("getting object %s: %w", key, err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return Mail{}, fmt.Errorf("reading object %s: %w", key, err)
	}
	parsed, err := parseMail(raw, received)
	if err != nil {
		return Mail{}, fmt.Errorf("parsing email %s: %w", key, err)
	}
	return parsed, nil
}

// parseMail extracts the subject, date, and preferred body part from a raw
// RFC 5322 message.
func parseMail(raw []byte, received time.Time) (Mail, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return Mail{}, err
	}

	body := env.HTML
	if body == "" {
		body = env.Text
	}

	date := received
	if header := env.GetHeader("Date"); header != "" {
		if parsed, err := mail.ParseDate(header); err == nil {
			date = parsed.UTC()
		}
	}

	return Mail{
		Subject:    env.GetHeader("Subject"),
		Body:       body,
		Date:       date,
		ReceivedAt: received,
	}, nil
}
