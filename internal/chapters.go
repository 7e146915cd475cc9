package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Chapter is one installment of a book. It moves through three states: stub
// (no html), body (html set by hydration), converted (epub set by
// conversion). Chapters from inbound-email sources arrive with their body
// inline and skip the stub state.
type Chapter struct {
	ID          uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
	BookID      uuid.UUID
	Title       string
	Metadata    ChapterMetadata
	HTML        *string
	EPUB        []byte
	PublishedAt *time.Time
}

// NewChapter is what a discovery provider returns before the row exists.
type NewChapter struct {
	Title       string
	Metadata    ChapterMetadata
	HTML        *string
	EPUB        []byte
	PublishedAt *time.Time
}

// ChapterPatch updates a chapter in place; nil fields keep their stored
// value.
type ChapterPatch struct {
	Title       *string
	HTML        *string
	EPUB        []byte
	PublishedAt *time.Time
}

const _chapterCols = `id, created_at, updated_at, book_id, title, metadata, html, epub, published_at`

// _pubOrder serializes chapters the way a reader would encounter them.
// Feeds occasionally omit publication dates, in which case ingestion order
// stands in.
const _pubOrder = `coalesce(published_at, created_at)`

func scanChapter(row scanner) (*Chapter, error) {
	var (
		id, bookID, md []byte
		created, upd   string
		html, pub      sql.NullString
		chapter        Chapter
	)
	err := row.Scan(&id, &created, &upd, &bookID, &chapter.Title, &md, &html, &chapter.EPUB, &pub)
	if err != nil {
		return nil, err
	}
	if chapter.ID, err = decodeID(id); err != nil {
		return nil, err
	}
	if chapter.BookID, err = decodeID(bookID); err != nil {
		return nil, err
	}
	if chapter.CreatedAt, err = decodeTime(created); err != nil {
		return nil, err
	}
	if chapter.UpdatedAt, err = decodeTime(upd); err != nil {
		return nil, err
	}
	if chapter.Metadata, err = unmarshalChapterMetadata(md); err != nil {
		return nil, err
	}
	if html.Valid {
		chapter.HTML = &html.String
	}
	if chapter.PublishedAt, err = decodeTimePtr(pub); err != nil {
		return nil, err
	}
	return &chapter, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertChapter(ctx context.Context, db execer, bookID uuid.UUID, nc NewChapter, at time.Time) (*Chapter, error) {
	md, err := marshalChapterMetadata(nc.Metadata)
	if err != nil {
		return nil, err
	}
	chapter := &Chapter{
		ID:          uuid.New(),
		CreatedAt:   at,
		UpdatedAt:   at,
		BookID:      bookID,
		Title:       nc.Title,
		Metadata:    nc.Metadata,
		HTML:        nc.HTML,
		EPUB:        nc.EPUB,
		PublishedAt: nc.PublishedAt,
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO chapters (`+_chapterCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		encodeID(chapter.ID), encodeTime(chapter.CreatedAt), encodeTime(chapter.UpdatedAt),
		encodeID(bookID), chapter.Title, string(md), chapter.HTML, chapter.EPUB,
		encodeTimePtr(chapter.PublishedAt),
	)
	if isForeignKeyErr(err) {
		return nil, notFound("book", bookID)
	}
	if err != nil {
		return nil, fmt.Errorf("creating chapter: %w", err)
	}
	return chapter, nil
}

// CreateChapter inserts a single chapter for the book.
func (s *Store) CreateChapter(ctx context.Context, bookID uuid.UUID, nc NewChapter) (*Chapter, error) {
	return insertChapter(ctx, s.db, bookID, nc, s.now())
}

// CreateChapters inserts a discovery batch in one transaction. Any per-row
// failure rolls back the whole batch.
func (s *Store) CreateChapters(ctx context.Context, bookID uuid.UUID, ncs []NewChapter) ([]*Chapter, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	chapters := make([]*Chapter, 0, len(ncs))
	for _, nc := range ncs {
		chapter, err := insertChapter(ctx, tx, bookID, nc, s.now())
		if err != nil {
			return nil, err
		}
		chapters = append(chapters, chapter)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing chapters: %w", err)
	}
	return chapters, nil
}

// UpdateChapter patches a chapter and refreshes updated_at.
func (s *Store) UpdateChapter(ctx context.Context, id uuid.UUID, patch ChapterPatch) (*Chapter, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE chapters SET
			updated_at = ?,
			title = coalesce(?, title),
			html = coalesce(?, html),
			epub = coalesce(?, epub),
			published_at = coalesce(?, published_at)
		WHERE id = ?
		RETURNING `+_chapterCols,
		encodeTime(s.now()), patch.Title, patch.HTML, patch.EPUB,
		encodeTimePtr(patch.PublishedAt), encodeID(id),
	)
	chapter, err := scanChapter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("chapter", id)
	}
	if err != nil {
		return nil, fmt.Errorf("updating chapter: %w", err)
	}
	return chapter, nil
}

// GetChapter loads one chapter by ID.
func (s *Store) GetChapter(ctx context.Context, id uuid.UUID) (*Chapter, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+_chapterCols+` FROM chapters WHERE id = ?`, encodeID(id),
	)
	chapter, err := scanChapter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("chapter", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting chapter: %w", err)
	}
	return chapter, nil
}

func (s *Store) queryChapters(ctx context.Context, query string, args ...any) ([]*Chapter, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chapters []*Chapter
	for rows.Next() {
		chapter, err := scanChapter(rows)
		if err != nil {
			return nil, err
		}
		chapters = append(chapters, chapter)
	}
	return chapters, rows.Err()
}

// ListChapters returns a book's chapters, most recently published first.
func (s *Store) ListChapters(ctx context.Context, bookID uuid.UUID) ([]*Chapter, error) {
	return s.queryChapters(ctx, `
		SELECT `+_chapterCols+` FROM chapters
		WHERE book_id = ?
		ORDER BY `+_pubOrder+` DESC`, encodeID(bookID),
	)
}

// MostRecentChapter returns the book's newest chapter by ingestion time, or
// nil when the book has none. Discovery uses this as its cursor;
// published_at deliberately plays no part so a feed with out-of-order dates
// can't suppress discovery.
func (s *Store) MostRecentChapter(ctx context.Context, bookID uuid.UUID) (*Chapter, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+_chapterCols+` FROM chapters
		WHERE book_id = ?
		ORDER BY created_at DESC LIMIT 1`, encodeID(bookID),
	)
	chapter, err := scanChapter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting most recent chapter: %w", err)
	}
	return chapter, nil
}

// ListChaptersWithoutBody returns stubs awaiting hydration.
func (s *Store) ListChaptersWithoutBody(ctx context.Context) ([]*Chapter, error) {
	return s.queryChapters(ctx, `
		SELECT `+_chapterCols+` FROM chapters
		WHERE html IS NULL
		ORDER BY `+_pubOrder+` DESC`,
	)
}

// ListChaptersForConversion returns hydrated chapters awaiting an epub.
func (s *Store) ListChaptersForConversion(ctx context.Context) ([]*Chapter, error) {
	return s.queryChapters(ctx, `
		SELECT `+_chapterCols+` FROM chapters
		WHERE html IS NOT NULL AND epub IS NULL
		ORDER BY `+_pubOrder+` DESC`,
	)
}

// ListDeliverableChapters returns converted chapters past the subscription
// cursor, in the order a reader should receive them.
func (s *Store) ListDeliverableChapters(ctx context.Context, bookID uuid.UUID, after *time.Time) ([]*Chapter, error) {
	return s.queryChapters(ctx, `
		SELECT `+_chapterCols+` FROM chapters
		WHERE book_id = ?
			AND epub IS NOT NULL
			AND (? IS NULL OR created_at > ?)
		ORDER BY `+_pubOrder+` ASC`,
		encodeID(bookID), encodeTimePtr(after), encodeTimePtr(after),
	)
}

// DeleteChapter removes one chapter.
func (s *Store) DeleteChapter(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chapters WHERE id = ?`, encodeID(id))
	if err != nil {
		return fmt.Errorf("deleting chapter: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("chapter", id)
	}
	return nil
}
