package internal

import (
	"encoding/json"
	"fmt"
)

// Metadata variants are stored as JSON tagged unions in a single text
// column. Unit variants encode as a bare string ("Pale"), variants with
// payloads as a single-key object ({"RoyalRoad": 12345}).

// BookMetadata identifies the source a book is tracked from. The variant
// fully determines which discovery provider handles the book.
type BookMetadata interface {
	variant() string
}

// BookRoyalRoad tracks a Royal Road fiction by its numeric site ID.
type BookRoyalRoad struct {
	BookID int64
}

// BookPale tracks the Pale web serial.
type BookPale struct{}

// BookWanderingInn tracks The Wandering Inn via inbound Patreon email.
type BookWanderingInn struct{}

// BookDailyGrind tracks The Daily Grind via inbound Patreon email.
type BookDailyGrind struct{}

// BookApparatus tracks Apparatus of Change via inbound Patreon email.
type BookApparatus struct{}

func (BookRoyalRoad) variant() string   { return "RoyalRoad" }
func (BookPale) variant() string        { return "Pale" }
func (BookWanderingInn) variant() string { return "TheWanderingInnPatreon" }
func (BookDailyGrind) variant() string  { return "TheDailyGrindPatreon" }
func (BookApparatus) variant() string   { return "ApparatusOfChangePatreon" }

// ChapterMetadata carries the source-specific locator for one chapter.
type ChapterMetadata interface {
	variant() string
}

// ChapterRoyalRoad locates a chapter on Royal Road.
type ChapterRoyalRoad struct {
	BookID    int64 `json:"royalroad_book_id"`
	ChapterID int64 `json:"royalroad_chapter_id"`
}

// ChapterPale locates a Pale chapter by post URL.
type ChapterPale struct {
	URL string `json:"url"`
}

// ChapterWanderingInn locates a password-protected Wandering Inn chapter.
type ChapterWanderingInn struct {
	URL      string  `json:"url"`
	Password *string `json:"password"`
}

// ChapterDailyGrind chapters arrive with their body inline; there is
// nothing to locate.
type ChapterDailyGrind struct{}

// ChapterApparatus chapters arrive with their body inline.
type ChapterApparatus struct{}

func (ChapterRoyalRoad) variant() string   { return "RoyalRoad" }
func (ChapterPale) variant() string        { return "Pale" }
func (ChapterWanderingInn) variant() string { return "TheWanderingInnPatreon" }
func (ChapterDailyGrind) variant() string  { return "TheDailyGrindPatreon" }
func (ChapterApparatus) variant() string   { return "ApparatusOfChangePatreon" }

// compatibleMetadata reports whether a chapter's metadata variant matches
// its book's.
func compatibleMetadata(book BookMetadata, chapter ChapterMetadata) bool {
	return book != nil && chapter != nil && book.variant() == chapter.variant()
}

func marshalBookMetadata(m BookMetadata) ([]byte, error) {
	switch v := m.(type) {
	case BookRoyalRoad:
		return json.Marshal(map[string]int64{"RoyalRoad": v.BookID})
	case BookPale, BookWanderingInn, BookDailyGrind, BookApparatus:
		return json.Marshal(m.variant())
	default:
		return nil, fmt.Errorf("unknown book metadata %T", m)
	}
}

func unmarshalBookMetadata(data []byte) (BookMetadata, error) {
	var unit string
	if err := json.Unmarshal(data, &unit); err == nil {
		switch unit {
		case "Pale":
			return BookPale{}, nil
		case "TheWanderingInnPatreon":
			return BookWanderingInn{}, nil
		case "TheDailyGrindPatreon":
			return BookDailyGrind{}, nil
		case "ApparatusOfChangePatreon":
			return BookApparatus{}, nil
		default:
			return nil, fmt.Errorf("unknown book metadata variant %q", unit)
		}
	}

	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return nil, fmt.Errorf("decoding book metadata: %w", err)
	}
	if raw, ok := tagged["RoyalRoad"]; ok {
		var id int64
		if err := json.Unmarshal(raw, &id); err != nil {
			return nil, fmt.Errorf("decoding book metadata: %w", err)
		}
		return BookRoyalRoad{BookID: id}, nil
	}
	return nil, fmt.Errorf("unknown book metadata %s", data)
}

func marshalChapterMetadata(m ChapterMetadata) ([]byte, error) {
	switch v := m.(type) {
	case ChapterRoyalRoad:
		return json.Marshal(map[string]ChapterRoyalRoad{"RoyalRoad": v})
	case ChapterPale:
		return json.Marshal(map[string]ChapterPale{"Pale": v})
	case ChapterWanderingInn:
		return json.Marshal(map[string]ChapterWanderingInn{"TheWanderingInnPatreon": v})
	case ChapterDailyGrind, ChapterApparatus:
		return json.Marshal(m.variant())
	default:
		return nil, fmt.Errorf("unknown chapter metadata %T", m)
	}
}

func unmarshalChapterMetadata(data []byte) (ChapterMetadata, error) {
	var unit string
	if err := json.Unmarshal(data, &unit); err == nil {
		switch unit {
		case "TheDailyGrindPatreon":
			return ChapterDailyGrind{}, nil
		case "ApparatusOfChangePatreon":
			return ChapterApparatus{}, nil
		default:
			return nil, fmt.Errorf("unknown chapter metadata variant %q", unit)
		}
	}

	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return nil, fmt.Errorf("decoding chapter metadata: %w", err)
	}
	for tag, raw := range tagged {
		switch tag {
		case "RoyalRoad":
			var v ChapterRoyalRoad
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("decoding chapter metadata: %w", err)
			}
			return v, nil
		case "Pale":
			var v ChapterPale
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("decoding chapter metadata: %w", err)
			}
			return v, nil
		case "TheWanderingInnPatreon":
			var v ChapterWanderingInn
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("decoding chapter metadata: %w", err)
			}
			return v, nil
		}
	}
	return nil, fmt.Errorf("unknown chapter metadata %s", data)
}
