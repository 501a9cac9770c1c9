package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

//go:embed schema/*.sql
var schemaFS embed.FS

type dialect string

const (
	dialectPostgres dialect = "postgres"
	dialectSQLite   dialect = "sqlite"
)

// rebind rewrites '?' placeholders into the dialect's positional form.
func (d dialect) rebind(query string) string {
	if d != dialectPostgres {
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

// Store owns the connection pool of the contact database.
type Store struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
	closeFn func()
}

// Open picks the backend from the URL scheme: postgres:// or postgresql://
// for PostgreSQL, sqlite:// or file: for SQLite.
func Open(ctx context.Context, url string, logger *slog.Logger) (*Store, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return OpenPostgres(ctx, url, logger)
	case strings.HasPrefix(url, "sqlite://"):
		return OpenSQLite(ctx, strings.TrimPrefix(url, "sqlite://"), logger)
	case strings.HasPrefix(url, "file:"):
		return OpenSQLite(ctx, url, logger)
	default:
		return nil, fmt.Errorf("unsupported database url scheme: %q", url)
	}
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	script, err := schemaFS.ReadFile("schema/" + string(s.dialect) + ".sql")
	if err != nil {
		return fmt.Errorf("failed to read %s schema: %w", s.dialect, err)
	}

	for _, stmt := range strings.Split(string(script), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	s.logger.Info("Schema applied", "dialect", s.dialect)
	return nil
}

// Begin starts the unit of work the ledger and contact accessors run in.
// The transaction is bound to ctx; callers that must commit after ctx is
// canceled should pass context.WithoutCancel(ctx).
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return &Tx{tx: tx, dialect: s.dialect}, nil
}

// Ping checks database availability.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close gracefully shuts down the connection pool
func (s *Store) Close() error {
	s.logger.Info("Closing database connection pool", "dialect", s.dialect)
	err := s.db.Close()
	if s.closeFn != nil {
		s.closeFn()
	}
	return err
}

// Tx is a storage transaction. Every ledger and contact operation runs inside
// one; none of them commits on its own.
type Tx struct {
	tx      *sql.Tx
	dialect dialect
}

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

// Rollback is a no-op after Commit.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return nil
}

func (t *Tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.rebind(query), args...)
}

func (t *Tx) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.dialect.rebind(query), args...)
}

func (t *Tx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.dialect.rebind(query), args...)
}
