package internal

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Discovery polls each book's source for chapters newer than the most
// recently ingested one and persists them as stubs. Books are processed
// concurrently; one book's failure never blocks another's.
type Discovery struct {
	store     *Store
	providers *Providers
	period    time.Duration
	metrics   *WorkerMetrics
}

// NewDiscovery creates the discovery worker.
func NewDiscovery(store *Store, providers *Providers, period time.Duration, metrics *WorkerMetrics) *Discovery {
	return &Discovery{
		store:     store,
		providers: providers,
		period:    period,
		metrics:   metrics,
	}
}

// Run polls until the context is canceled. A tick that overruns the period
// doesn't fire backlog ticks afterwards.
func (d *Discovery) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()
	for {
		if err := d.tick(ctx); err != nil {
			Log(ctx).Warn("problem discovering chapters", "err", err)
		}
		d.metrics.tickInc("discovery")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Discovery) tick(ctx context.Context) error {
	books, err := d.store.ListBooks(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, book := range books {
		g.Go(func() error {
			if err := d.discoverBook(gctx, book); err != nil {
				Log(gctx).Warn("problem discovering book", "book", book.Title, "err", err)
				d.metrics.errorInc("discovery")
			}
			return nil
		})
	}
	return g.Wait()
}

// discoverBook asks the book's provider for chapters newer than the
// ingestion cursor and inserts them in a single transaction, so a partial
// batch never lands.
func (d *Discovery) discoverBook(ctx context.Context, book *Book) error {
	provider, err := d.providers.ForBook(book.Metadata)
	if err != nil {
		return err
	}

	recent, err := d.store.MostRecentChapter(ctx, book.ID)
	if err != nil {
		return err
	}
	var lastSeen *time.Time
	if recent != nil {
		lastSeen = &recent.CreatedAt
	}

	chapters, err := provider.FetchNewChapters(ctx, book, lastSeen)
	if err != nil {
		return err
	}
	if len(chapters) == 0 {
		return nil
	}

	created, err := d.store.CreateChapters(ctx, book.ID, chapters)
	if err != nil {
		return err
	}
	Log(ctx).Info("discovered chapters", "book", book.Title, "count", len(created))
	d.metrics.itemsAdd("discovery", len(created))
	return nil
}
