package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Book is a serial being tracked. Its metadata variant determines which
// discovery provider polls for new chapters.
type Book struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
	Title     string
	Author    string
	Metadata  BookMetadata
}

func scanBook(row scanner) (*Book, error) {
	var (
		id, md       []byte
		created, upd string
		book         Book
	)
	err := row.Scan(&id, &created, &upd, &book.Title, &book.Author, &md)
	if err != nil {
		return nil, err
	}
	if book.ID, err = decodeID(id); err != nil {
		return nil, err
	}
	if book.CreatedAt, err = decodeTime(created); err != nil {
		return nil, err
	}
	if book.UpdatedAt, err = decodeTime(upd); err != nil {
		return nil, err
	}
	if book.Metadata, err = unmarshalBookMetadata(md); err != nil {
		return nil, err
	}
	return &book, nil
}

// CreateBook registers a new book.
func (s *Store) CreateBook(ctx context.Context, title, author string, metadata BookMetadata) (*Book, error) {
	md, err := marshalBookMetadata(metadata)
	if err != nil {
		return nil, err
	}
	book := &Book{
		ID:        uuid.New(),
		CreatedAt: s.now(),
		UpdatedAt: s.now(),
		Title:     title,
		Author:    author,
		Metadata:  metadata,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO books (id, created_at, updated_at, title, author, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`,
		encodeID(book.ID), encodeTime(book.CreatedAt), encodeTime(book.UpdatedAt),
		book.Title, book.Author, string(md),
	)
	if err != nil {
		return nil, fmt.Errorf("creating book: %w", err)
	}
	return book, nil
}

// UpdateBook patches a book; nil fields keep their stored value.
func (s *Store) UpdateBook(ctx context.Context, id uuid.UUID, title, author *string, metadata BookMetadata) (*Book, error) {
	var md *string
	if metadata != nil {
		b, err := marshalBookMetadata(metadata)
		if err != nil {
			return nil, err
		}
		str := string(b)
		md = &str
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE books SET
			updated_at = ?,
			title = coalesce(?, title),
			author = coalesce(?, author),
			metadata = coalesce(?, metadata)
		WHERE id = ?
		RETURNING id, created_at, updated_at, title, author, metadata`,
		encodeTime(s.now()), title, author, md, encodeID(id),
	)
	book, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("book", id)
	}
	if err != nil {
		return nil, fmt.Errorf("updating book: %w", err)
	}
	return book, nil
}

// GetBook loads one book by ID.
func (s *Store) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, updated_at, title, author, metadata
		FROM books WHERE id = ?`, encodeID(id),
	)
	book, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("book", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting book: %w", err)
	}
	return book, nil
}

// ListBooks returns every tracked book.
func (s *Store) ListBooks(ctx context.Context) ([]*Book, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, updated_at, title, author, metadata
		FROM books ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

// DeleteBook removes a book and, via cascade, its chapters and
// subscriptions.
func (s *Store) DeleteBook(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, encodeID(id))
	if err != nil {
		return fmt.Errorf("deleting book: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("book", id)
	}
	return nil
}
