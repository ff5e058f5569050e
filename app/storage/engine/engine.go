// Package engine wraps sqlx.DB for the action log. Sqlite is the default engine,
// postgres is used when the connection url has postgres:// scheme.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // postgres driver loaded here
	_ "modernc.org/sqlite" // sqlite driver loaded here
)

// Type is a type of database engine
type Type string

// enum of supported database engines
const (
	Unknown  Type = ""
	Sqlite   Type = "sqlite"
	Postgres Type = "postgres"
)

// SQL is a wrapper for sqlx.DB with type.
// Type allows distinguishing between different database engines.
type SQL struct {
	sqlx.DB
	gid    string // group id, allows keeping records of several bots in the same database
	dbType Type
}

// New makes engine for the connection url. Empty url is an error.
func New(ctx context.Context, connURL, gid string) (*SQL, error) {
	switch {
	case connURL == "":
		return nil, fmt.Errorf("connection URL is empty")
	case strings.HasPrefix(connURL, "postgres://"), strings.HasPrefix(connURL, "postgresql://"):
		return NewPostgres(ctx, connURL, gid)
	case strings.HasPrefix(connURL, "sqlite://"):
		return NewSqlite(strings.TrimPrefix(connURL, "sqlite://"), gid)
	case strings.HasPrefix(connURL, "file://"):
		return NewSqlite(strings.TrimPrefix(connURL, "file://"), gid)
	case strings.HasPrefix(connURL, "file:"):
		return NewSqlite(strings.TrimPrefix(connURL, "file:"), gid)
	case connURL == ":memory:", strings.HasSuffix(connURL, ".db"), strings.HasSuffix(connURL, ".sqlite"):
		return NewSqlite(connURL, gid)
	}
	return nil, fmt.Errorf("unsupported database type in %q", connURL)
}

// NewSqlite creates a new sqlite database
func NewSqlite(file, gid string) (*SQL, error) {
	db, err := sqlx.Connect("sqlite", file)
	if err != nil {
		return &SQL{}, err
	}
	if file == ":memory:" {
		db.SetMaxOpenConns(1) // each connection of in-memory sqlite has its own database
	}
	return &SQL{DB: *db, gid: gid, dbType: Sqlite}, nil
}

// NewPostgres creates a new postgres database connection
func NewPostgres(ctx context.Context, connURL, gid string) (*SQL, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", connURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &SQL{DB: *db, gid: gid, dbType: Postgres}, nil
}

// GID returns the group id
func (e *SQL) GID() string {
	return e.gid
}

// Type returns the database engine type
func (e *SQL) Type() Type {
	return e.dbType
}

// MakeLock creates a new lock for the database engine
func (e *SQL) MakeLock() RWLocker {
	if e.dbType == Sqlite {
		return new(sync.RWMutex) // sqlite need locking
	}
	return noLock{} // postgres handles concurrent writes itself
}

// Adopt converts "?" placeholders to "$N" for postgres, placeholders inside quotes are kept as is
func (e *SQL) Adopt(q string) string {
	if e.dbType != Postgres {
		return q
	}
	var b strings.Builder
	n, inQuote := 0, false
	for _, r := range q {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteString("$" + strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TableConfig defines a table schema and optional migration of existing rows
type TableConfig struct {
	Schema      Schema
	MigrateFunc func(ctx context.Context, tx *sqlx.Tx, gid string) error
}

// InitTable creates the table and its indexes if needed and runs migration for existing tables.
// Everything is done in one transaction.
func InitTable(ctx context.Context, db *SQL, cfg TableConfig) error {
	if db == nil {
		return fmt.Errorf("db connection is nil")
	}

	name := cfg.Schema.Table
	createQuery, err := cfg.Schema.createStatement(db.Type())
	if err != nil {
		return fmt.Errorf("failed to get create table query: %w", err)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var exists int
	existsQuery := "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?"
	if db.Type() == Postgres {
		existsQuery = "SELECT COUNT(*) FROM information_schema.tables WHERE table_name=$1"
	}
	if err = tx.GetContext(ctx, &exists, existsQuery, name); err != nil {
		return fmt.Errorf("failed to check for %s table existence: %w", name, err)
	}

	if exists == 0 {
		if _, err = tx.ExecContext(ctx, createQuery); err != nil {
			return fmt.Errorf("failed to create table %s: %w", name, err)
		}
	}

	if cfg.MigrateFunc != nil {
		if err = cfg.MigrateFunc(ctx, tx, db.GID()); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", name, err)
		}
	}

	for _, idx := range cfg.Schema.Indexes {
		if _, err = tx.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index for %s: %w", name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
