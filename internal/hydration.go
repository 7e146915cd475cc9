package internal

import (
	"context"
	"time"
)

// Hydration fetches HTML bodies for chapters discovery left as stubs.
// Chapters are processed one at a time; a failed fetch is retried on the
// next tick.
type Hydration struct {
	store     *Store
	providers *Providers
	period    time.Duration
	metrics   *WorkerMetrics
}

// NewHydration creates the hydration worker.
func NewHydration(store *Store, providers *Providers, period time.Duration, metrics *WorkerMetrics) *Hydration {
	return &Hydration{
		store:     store,
		providers: providers,
		period:    period,
		metrics:   metrics,
	}
}

// Run polls until the context is canceled.
func (h *Hydration) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.period)
	defer ticker.Stop()
	for {
		if err := h.tick(ctx); err != nil {
			Log(ctx).Warn("problem hydrating chapters", "err", err)
		}
		h.metrics.tickInc("hydration")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (h *Hydration) tick(ctx context.Context) error {
	chapters, err := h.store.ListChaptersWithoutBody(ctx)
	if err != nil {
		return err
	}

	for _, chapter := range chapters {
		if err := h.hydrate(ctx, chapter); err != nil {
			Log(ctx).Warn("problem hydrating chapter", "chapter", chapter.Title, "err", err)
			h.metrics.errorInc("hydration")
		}
	}
	return nil
}

func (h *Hydration) hydrate(ctx context.Context, chapter *Chapter) error {
	provider, ok, err := h.providers.BodyProviderFor(chapter.Metadata)
	if err != nil {
		return err
	}
	if !ok {
		// Inline-body sources never need hydration; a bodiless chapter
		// from one of them stays a stub until someone patches it.
		return nil
	}

	body, err := provider.FetchChapterBody(ctx, chapter)
	if err != nil {
		return err
	}
	if _, err := h.store.UpdateChapter(ctx, chapter.ID, ChapterPatch{HTML: &body}); err != nil {
		return err
	}
	Log(ctx).Info("hydrated chapter", "chapter", chapter.Title)
	h.metrics.itemsAdd("hydration", 1)
	return nil
}
