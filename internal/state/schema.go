// Package state implements the persistence layer: the settings and
// blocked-domain repos, SQL dialect selection, migrations, and bootstrap.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Dialect identifies the SQL backend behind a DB.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB is an open database handle plus the query builder matching its dialect.
type DB struct {
	SQL     *sql.DB
	Dialect Dialect
	Builder sq.StatementBuilderType
}

// IsPostgresDSN reports whether dsn addresses a postgres server rather than
// a SQLite file.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Open opens the database addressed by dsn: a postgres:// URL or a SQLite
// file path (parent directories are created).
func Open(dsn string) (*DB, error) {
	if IsPostgresDSN(dsn) {
		db, err := OpenPostgres(dsn)
		if err != nil {
			return nil, err
		}
		return &DB{
			SQL:     db,
			Dialect: DialectPostgres,
			Builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		}, nil
	}

	if dir := filepath.Dir(dsn); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir %s: %w", dir, err)
		}
	}
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, err
	}
	return &DB{
		SQL:     db,
		Dialect: DialectSQLite,
		Builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

// Close closes the underlying handle.
func (d *DB) Close() error {
	if d == nil || d.SQL == nil {
		return nil
	}
	return d.SQL.Close()
}

// OpenDB opens a SQLite database with recommended pragmas.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", path, err)
	}

	// Single-writer: only one connection needed.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q on %s: %w", p, path, err)
		}
	}

	return db, nil
}

// OpenPostgres opens a postgres pool via lib/pq and verifies connectivity.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}
