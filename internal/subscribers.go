package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Subscriber is a delivery target. Either channel may be unset; a
// subscriber with neither configured is silently skipped by delivery.
type Subscriber struct {
	ID          uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Name        string
	KindleEmail *string
	PushoverKey *string
}

func scanSubscriber(row scanner) (*Subscriber, error) {
	var (
		id            []byte
		created, upd  string
		kindle, pushr sql.NullString
		sub           Subscriber
	)
	err := row.Scan(&id, &created, &upd, &sub.Name, &kindle, &pushr)
	if err != nil {
		return nil, err
	}
	if sub.ID, err = decodeID(id); err != nil {
		return nil, err
	}
	if sub.CreatedAt, err = decodeTime(created); err != nil {
		return nil, err
	}
	if sub.UpdatedAt, err = decodeTime(upd); err != nil {
		return nil, err
	}
	if kindle.Valid {
		sub.KindleEmail = &kindle.String
	}
	if pushr.Valid {
		sub.PushoverKey = &pushr.String
	}
	return &sub, nil
}

// CreateSubscriber registers a delivery target.
func (s *Store) CreateSubscriber(ctx context.Context, name string, kindleEmail, pushoverKey *string) (*Subscriber, error) {
	sub := &Subscriber{
		ID:          uuid.New(),
		CreatedAt:   s.now(),
		UpdatedAt:   s.now(),
		Name:        name,
		KindleEmail: kindleEmail,
		PushoverKey: pushoverKey,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscribers (id, created_at, updated_at, name, kindle_email, pushover_key)
		VALUES (?, ?, ?, ?, ?, ?)`,
		encodeID(sub.ID), encodeTime(sub.CreatedAt), encodeTime(sub.UpdatedAt),
		sub.Name, sub.KindleEmail, sub.PushoverKey,
	)
	if err != nil {
		return nil, fmt.Errorf("creating subscriber: %w", err)
	}
	return sub, nil
}

// UpdateSubscriber patches a subscriber; nil fields keep their stored
// value.
func (s *Store) UpdateSubscriber(ctx context.Context, id uuid.UUID, name, kindleEmail, pushoverKey *string) (*Subscriber, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE subscribers SET
			updated_at = ?,
			name = coalesce(?, name),
			kindle_email = coalesce(?, kindle_email),
			pushover_key = coalesce(?, pushover_key)
		WHERE id = ?
		RETURNING id, created_at, updated_at, name, kindle_email, pushover_key`,
		encodeTime(s.now()), name, kindleEmail, pushoverKey, encodeID(id),
	)
	sub, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("subscriber", id)
	}
	if err != nil {
		return nil, fmt.Errorf("updating subscriber: %w", err)
	}
	return sub, nil
}

// GetSubscriber loads one subscriber by ID.
func (s *Store) GetSubscriber(ctx context.Context, id uuid.UUID) (*Subscriber, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, updated_at, name, kindle_email, pushover_key
		FROM subscribers WHERE id = ?`, encodeID(id),
	)
	sub, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("subscriber", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting subscriber: %w", err)
	}
	return sub, nil
}

// ListSubscribers returns every registered subscriber.
func (s *Store) ListSubscribers(ctx context.Context) ([]*Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, updated_at, name, kindle_email, pushover_key
		FROM subscribers ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing subscribers: %w", err)
	}
	defer rows.Close()

	var subs []*Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeleteSubscriber removes a subscriber and, via cascade, their
// subscriptions.
func (s *Store) DeleteSubscriber(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE id = ?`, encodeID(id))
	if err != nil {
		return fmt.Errorf("deleting subscriber: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("subscriber", id)
	}
	return nil
}
