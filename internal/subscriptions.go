package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Subscription links a subscriber to a book, with a chunk-size threshold
// and a delivery cursor. The cursor's created_at is denormalized from the
// referenced chapter so the delivery scan needs no join; every cursor write
// must keep the pair consistent.
type Subscription struct {
	ID                            uuid.UUID
	CreatedAt                     time.Time
	UpdatedAt                     time.Time
	SubscriberID                  uuid.UUID
	BookID                        uuid.UUID
	ChunkSize                     int
	LastDeliveredChapterID        *uuid.UUID
	LastDeliveredChapterCreatedAt *time.Time
}

const _subscriptionCols = `id, created_at, updated_at, subscriber_id, book_id, chunk_size,
	last_delivered_chapter_id, last_delivered_chapter_created_at`

func scanSubscription(row scanner) (*Subscription, error) {
	var (
		id, subscriberID, bookID []byte
		created, upd             string
		lastID                   []byte
		lastCreated              sql.NullString
		sub                      Subscription
	)
	err := row.Scan(&id, &created, &upd, &subscriberID, &bookID, &sub.ChunkSize, &lastID, &lastCreated)
	if err != nil {
		return nil, err
	}
	if sub.ID, err = decodeID(id); err != nil {
		return nil, err
	}
	if sub.SubscriberID, err = decodeID(subscriberID); err != nil {
		return nil, err
	}
	if sub.BookID, err = decodeID(bookID); err != nil {
		return nil, err
	}
	if sub.CreatedAt, err = decodeTime(created); err != nil {
		return nil, err
	}
	if sub.UpdatedAt, err = decodeTime(upd); err != nil {
		return nil, err
	}
	if lastID != nil {
		chID, err := decodeID(lastID)
		if err != nil {
			return nil, err
		}
		sub.LastDeliveredChapterID = &chID
	}
	if sub.LastDeliveredChapterCreatedAt, err = decodeTimePtr(lastCreated); err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateSubscription subscribes a subscriber to a book. A nil chunkSize
// defaults to 1. When no cursor chapter is given the cursor starts at the
// book's most recent chapter, so a new subscription doesn't dump the whole
// backlist.
//
// sqlite can't tell us which foreign key a violation names, so the parents
// are checked individually up front to produce useful not-found errors.
func (s *Store) CreateSubscription(ctx context.Context, subscriberID, bookID uuid.UUID, chunkSize *int, lastDeliveredChapterID *uuid.UUID) (*Subscription, error) {
	if _, err := s.GetSubscriber(ctx, subscriberID); err != nil {
		return nil, err
	}
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return nil, err
	}

	var cursorID *uuid.UUID
	var cursorCreatedAt *time.Time
	if lastDeliveredChapterID != nil {
		chapter, err := s.GetChapter(ctx, *lastDeliveredChapterID)
		if err != nil {
			return nil, err
		}
		if chapter.BookID != bookID {
			return nil, fmt.Errorf("%w: chapter %s does not belong to book %s", errBadRequest, chapter.ID, bookID)
		}
		cursorID = &chapter.ID
		cursorCreatedAt = &chapter.CreatedAt
	} else {
		recent, err := s.MostRecentChapter(ctx, bookID)
		if err != nil {
			return nil, err
		}
		if recent != nil {
			cursorID = &recent.ID
			cursorCreatedAt = &recent.CreatedAt
		}
	}

	size := 1
	if chunkSize != nil {
		size = *chunkSize
	}
	if size < 1 {
		return nil, fmt.Errorf("%w: chunk size must be at least 1", errBadRequest)
	}

	sub := &Subscription{
		ID:                            uuid.New(),
		CreatedAt:                     s.now(),
		UpdatedAt:                     s.now(),
		SubscriberID:                  subscriberID,
		BookID:                        bookID,
		ChunkSize:                     size,
		LastDeliveredChapterID:        cursorID,
		LastDeliveredChapterCreatedAt: cursorCreatedAt,
	}
	var lastID []byte
	if cursorID != nil {
		lastID = encodeID(*cursorID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (`+_subscriptionCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		encodeID(sub.ID), encodeTime(sub.CreatedAt), encodeTime(sub.UpdatedAt),
		encodeID(subscriberID), encodeID(bookID), sub.ChunkSize,
		lastID, encodeTimePtr(cursorCreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("creating subscription: %w", err)
	}
	return sub, nil
}

// UpdateSubscription changes the subscription's chunk size.
func (s *Store) UpdateSubscription(ctx context.Context, id uuid.UUID, chunkSize int) (*Subscription, error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("%w: chunk size must be at least 1", errBadRequest)
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE subscriptions SET updated_at = ?, chunk_size = ?
		WHERE id = ?
		RETURNING `+_subscriptionCols,
		encodeTime(s.now()), chunkSize, encodeID(id),
	)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("subscription", id)
	}
	if err != nil {
		return nil, fmt.Errorf("updating subscription: %w", err)
	}
	return sub, nil
}

// SetLastDeliveredChapter advances the cursor to the given chapter in one
// atomic row update.
func (s *Store) SetLastDeliveredChapter(ctx context.Context, id uuid.UUID, chapter *Chapter) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET
			updated_at = ?,
			last_delivered_chapter_id = ?,
			last_delivered_chapter_created_at = ?
		WHERE id = ?`,
		encodeTime(s.now()), encodeID(chapter.ID), encodeTime(chapter.CreatedAt), encodeID(id),
	)
	if err != nil {
		return fmt.Errorf("advancing cursor: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("subscription", id)
	}
	return nil
}

// GetSubscription loads one subscription by ID.
func (s *Store) GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+_subscriptionCols+` FROM subscriptions WHERE id = ?`, encodeID(id),
	)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("subscription", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting subscription: %w", err)
	}
	return sub, nil
}

// ListSubscriptions returns a subscriber's subscriptions.
func (s *Store) ListSubscriptions(ctx context.Context, subscriberID uuid.UUID) ([]*Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+_subscriptionCols+` FROM subscriptions
		WHERE subscriber_id = ? ORDER BY created_at`, encodeID(subscriberID),
	)
	if err != nil {
		return nil, fmt.Errorf("listing subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeleteSubscription removes one subscription.
func (s *Store) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, encodeID(id))
	if err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("subscription", id)
	}
	return nil
}
