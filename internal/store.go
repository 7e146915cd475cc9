package internal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var _schema string

// _timeLayout is fixed-width so stored timestamps compare lexically in the
// same order they compare chronologically.
const _timeLayout = "2006-01-02 15:04:05.000"

// Store wraps the embedded sqlite database every worker coordinates
// through. Workers never talk to each other in-process; row state is the
// only signal.
type Store struct {
	db *sql.DB

	// now is swappable so tests can make created_at deterministic.
	now func() time.Time
}

// NewStore opens (and if necessary bootstraps) the database at path.
func NewStore(ctx context.Context, path string) (*Store, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(ON)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, _schema); err != nil {
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db, now: utcNow}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func encodeID(id uuid.UUID) []byte {
	return id[:]
}

func decodeID(b []byte) (uuid.UUID, error) {
	return uuid.FromBytes(b)
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(_timeLayout)
}

func decodeTime(s string) (time.Time, error) {
	return time.Parse(_timeLayout, s)
}

func encodeTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: encodeTime(*t), Valid: true}
}

func decodeTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := decodeTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// utcNow returns the current instant truncated to the precision we
// persist, so values written and re-read compare equal.
func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

type scanner interface {
	Scan(dest ...any) error
}
