package internal

import (
	"context"
	"fmt"
	"time"
)

// Conversion turns hydrated chapter HTML into per-chapter epubs. Failures
// are retried every tick; a chapter only leaves the queue once its epub is
// written.
type Conversion struct {
	store     *Store
	converter Converter
	period    time.Duration
	metrics   *WorkerMetrics
}

// NewConversion creates the conversion worker.
func NewConversion(store *Store, converter Converter, period time.Duration, metrics *WorkerMetrics) *Conversion {
	return &Conversion{
		store:     store,
		converter: converter,
		period:    period,
		metrics:   metrics,
	}
}

// Run polls until the context is canceled.
func (c *Conversion) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()
	for {
		if err := c.tick(ctx); err != nil {
			Log(ctx).Warn("problem converting chapters", "err", err)
		}
		c.metrics.tickInc("conversion")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Conversion) tick(ctx context.Context) error {
	chapters, err := c.store.ListChaptersForConversion(ctx)
	if err != nil {
		return err
	}

	for _, chapter := range chapters {
		if err := c.convert(ctx, chapter); err != nil {
			Log(ctx).Warn("problem converting chapter", "chapter", chapter.Title, "err", err)
			c.metrics.errorInc("conversion")
		}
	}
	return nil
}

func (c *Conversion) convert(ctx context.Context, chapter *Chapter) error {
	if chapter.HTML == nil {
		return fmt.Errorf("chapter %s has no body", chapter.ID)
	}
	book, err := c.store.GetBook(ctx, chapter.BookID)
	if err != nil {
		return err
	}

	cover := fmt.Sprintf("%s: %s", book.Title, chapter.Title)
	epub, err := c.converter.Convert(ctx, *chapter.HTML, cover, book.Title, book.Author)
	if err != nil {
		return err
	}
	if _, err := c.store.UpdateChapter(ctx, chapter.ID, ChapterPatch{EPUB: epub}); err != nil {
		return err
	}
	Log(ctx).Info("converted chapter", "chapter", chapter.Title)
	c.metrics.itemsAdd("conversion", 1)
	return nil
}
