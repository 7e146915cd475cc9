package internal

import (
	"context"
	"fmt"
	"time"
)

// NewChapterProvider lists chapters believed to be newer than the cursor.
// Providers may re-return chapters near the boundary; discovery tolerates
// duplicates rather than assuming exact-once.
type NewChapterProvider interface {
	FetchNewChapters(ctx context.Context, book *Book, lastSeen *time.Time) ([]NewChapter, error)
}

// ChapterBodyProvider fetches the HTML body for one chapter.
type ChapterBodyProvider interface {
	FetchChapterBody(ctx context.Context, chapter *Chapter) (string, error)
}

// Providers dispatches on a metadata variant. The variant set is small and
// closed; there is no plugin registry.
type Providers struct {
	RoyalRoad    NewChapterProvider
	Pale         NewChapterProvider
	WanderingInn NewChapterProvider
	DailyGrind   NewChapterProvider
	Apparatus    NewChapterProvider

	RoyalRoadBody    ChapterBodyProvider
	PaleBody         ChapterBodyProvider
	WanderingInnBody ChapterBodyProvider
}

// ForBook returns the discovery provider for the book's source.
func (p *Providers) ForBook(md BookMetadata) (NewChapterProvider, error) {
	var provider NewChapterProvider
	switch md.(type) {
	case BookRoyalRoad:
		provider = p.RoyalRoad
	case BookPale:
		provider = p.Pale
	case BookWanderingInn:
		provider = p.WanderingInn
	case BookDailyGrind:
		provider = p.DailyGrind
	case BookApparatus:
		provider = p.Apparatus
	default:
		return nil, fmt.Errorf("unknown book metadata %T", md)
	}
	if provider == nil {
		return nil, fmt.Errorf("no provider configured for %s", md.variant())
	}
	return provider, nil
}

// BodyProviderFor returns the body provider for a chapter's source. The
// second return is false for sources whose chapters carry bodies inline at
// discovery time; those never need hydration.
func (p *Providers) BodyProviderFor(md ChapterMetadata) (ChapterBodyProvider, bool, error) {
	var provider ChapterBodyProvider
	switch md.(type) {
	case ChapterRoyalRoad:
		provider = p.RoyalRoadBody
	case ChapterPale:
		provider = p.PaleBody
	case ChapterWanderingInn:
		provider = p.WanderingInnBody
	case ChapterDailyGrind, ChapterApparatus:
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("unknown chapter metadata %T", md)
	}
	if provider == nil {
		return nil, false, fmt.Errorf("no body provider configured for %s", md.variant())
	}
	return provider, true, nil
}
