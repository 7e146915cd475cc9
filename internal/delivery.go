package internal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

var _stripTags = bluemonday.StrictPolicy()

// Delivery scans subscriptions for queued converted chapters and ships
// them. A subscription fires once the queue reaches its chunk size; the
// whole queue ships in one batch, so chunk size is a threshold, not a cap.
// The cursor advances only after every configured channel succeeds, which
// makes a failed send retry the identical batch next tick.
type Delivery struct {
	store     *Store
	converter Converter
	mailer    Mailer
	pusher    Pusher
	period    time.Duration
	metrics   *WorkerMetrics
}

// NewDelivery creates the delivery worker.
func NewDelivery(store *Store, converter Converter, mailer Mailer, pusher Pusher, period time.Duration, metrics *WorkerMetrics) *Delivery {
	return &Delivery{
		store:     store,
		converter: converter,
		mailer:    mailer,
		pusher:    pusher,
		period:    period,
		metrics:   metrics,
	}
}

// Run polls until the context is canceled.
func (d *Delivery) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()
	for {
		if err := d.tick(ctx); err != nil {
			Log(ctx).Warn("problem delivering chapters", "err", err)
		}
		d.metrics.tickInc("delivery")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// readyDelivery is one subscription whose queue met its threshold, with
// the batch in the order the reader should get it.
type readyDelivery struct {
	subscriber   *Subscriber
	subscription *Subscription
	book         *Book
	chapters     []*Chapter
}

func (d *Delivery) tick(ctx context.Context) error {
	ready, err := d.findReady(ctx)
	if err != nil {
		return err
	}

	g := errgroup.Group{}
	g.SetLimit(4)
	for _, r := range ready {
		g.Go(func() error {
			if err := d.deliver(ctx, r); err != nil {
				Log(ctx).Warn("problem delivering batch",
					"subscriber", r.subscriber.Name, "book", r.book.Title, "err", err)
				d.metrics.errorInc("delivery")
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *Delivery) findReady(ctx context.Context) ([]readyDelivery, error) {
	subscribers, err := d.store.ListSubscribers(ctx)
	if err != nil {
		return nil, err
	}

	var ready []readyDelivery
	for _, subscriber := range subscribers {
		subscriptions, err := d.store.ListSubscriptions(ctx, subscriber.ID)
		if err != nil {
			return nil, err
		}
		for _, subscription := range subscriptions {
			book, err := d.store.GetBook(ctx, subscription.BookID)
			if err != nil {
				return nil, err
			}
			chapters, err := d.store.ListDeliverableChapters(ctx, subscription.BookID, subscription.LastDeliveredChapterCreatedAt)
			if err != nil {
				return nil, err
			}
			if len(chapters) < subscription.ChunkSize {
				continue
			}
			ready = append(ready, readyDelivery{
				subscriber:   subscriber,
				subscription: subscription,
				book:         book,
				chapters:     chapters,
			})
		}
	}
	return ready, nil
}

// deliver ships one batch: push notification first, then the assembled
// epub by email, then the cursor advance. Any failure leaves the cursor
// alone so the batch is retried whole.
func (d *Delivery) deliver(ctx context.Context, r readyDelivery) error {
	if r.subscriber.KindleEmail == nil && r.subscriber.PushoverKey == nil {
		// No channel configured. Leave the cursor alone so the backlog
		// ships once a channel is added.
		return nil
	}

	if r.subscriber.PushoverKey != nil {
		if d.pusher == nil {
			return fmt.Errorf("subscriber %s wants push notifications but no pusher is configured", r.subscriber.Name)
		}
		if err := d.pusher.Push(ctx, *r.subscriber.PushoverKey, pushMessage(r.book, r.chapters)); err != nil {
			return err
		}
	}

	if r.subscriber.KindleEmail != nil {
		if d.mailer == nil {
			return fmt.Errorf("subscriber %s wants email but no mailer is configured", r.subscriber.Name)
		}
		title := batchTitle(r.book, r.chapters)
		epub, err := d.converter.Convert(ctx, assembleBatch(r.chapters), title, r.book.Title, r.book.Author)
		if err != nil {
			return err
		}
		filename := sanitizeFilename(title) + ".epub"
		if err := d.mailer.SendEPUB(ctx, *r.subscriber.KindleEmail, title, filename, epub); err != nil {
			return err
		}
	}

	last := r.chapters[len(r.chapters)-1]
	if err := d.store.SetLastDeliveredChapter(ctx, r.subscription.ID, last); err != nil {
		return err
	}
	Log(ctx).Info("delivered chapters",
		"subscriber", r.subscriber.Name, "book", r.book.Title, "count", len(r.chapters))
	d.metrics.itemsAdd("delivery", 1)
	return nil
}

// assembleBatch concatenates the batch into one document, each chapter
// under its own heading, in publication order.
func assembleBatch(chapters []*Chapter) string {
	var sb strings.Builder
	for _, chapter := range chapters {
		sb.WriteString("<h1>" + chapter.Title + "</h1>")
		if chapter.HTML != nil {
			sb.WriteString(*chapter.HTML)
		}
	}
	return sb.String()
}

func batchTitle(book *Book, chapters []*Chapter) string {
	if len(chapters) == 1 {
		return fmt.Sprintf("%s: %s", book.Title, chapters[0].Title)
	}
	return fmt.Sprintf("%s: %s - %s", book.Title, chapters[0].Title, chapters[len(chapters)-1].Title)
}

func pushMessage(book *Book, chapters []*Chapter) string {
	if len(chapters) == 1 {
		return fmt.Sprintf("Delivered new chapter for %s: %s", book.Title, chapters[0].Title)
	}
	return fmt.Sprintf("Delivered new chapters for %s. %s through %s",
		book.Title, chapters[0].Title, chapters[len(chapters)-1].Title)
}

// sanitizeFilename reduces a chapter title to something an email
// attachment name can carry: markup stripped, entities unescaped, and
// anything outside letters, digits, spaces, and dashes dropped.
func sanitizeFilename(title string) string {
	clean := html.UnescapeString(_stripTags.Sanitize(title))
	var sb strings.Builder
	for _, r := range clean {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			sb.WriteRune(r)
		}
	}
	return strings.TrimSpace(sb.String())
}
