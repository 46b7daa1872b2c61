// Package state persists units, runs, traces, waiting edges, and
// experiences behind the core.Store interface. SQLite is the default
// backend; Postgres is available for shared deployments. Both run the
// same embedded migrations through goose.
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/leapstack-labs/structon/pkg/core"
)

// Dialect selects the SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStore implements core.Store on database/sql. The same query text
// serves both dialects; placeholders are rewritten for Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

var _ core.Store = (*SQLStore)(nil)

// New wraps an existing database handle. Useful for tests that inject
// a mocked connection.
func New(db *sql.DB, dialect Dialect, logger *slog.Logger) *SQLStore {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SQLStore{db: db, dialect: dialect, logger: logger}
}

// OpenSQLite opens (or creates) a SQLite store at the given path.
// Use ":memory:" for an in-memory database.
func OpenSQLite(path string, logger *slog.Logger) (*SQLStore, error) {
	dsn := path
	memory := path == ":memory:"
	if !memory {
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if memory {
		// Every connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	return New(db, DialectSQLite, logger), nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB exposes the underlying handle for health checks.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// q rewrites ? placeholders to $n for the Postgres dialect.
func (s *SQLStore) q(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// notFound builds the typed missing-row error for an entity.
func notFound(entity, id string) error {
	return core.NewError(core.ErrNotFound, fmt.Sprintf("%s %s not found", entity, id))
}

// marshalJSON renders v as a JSON string, or NULL for nil.
func marshalJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal json: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
