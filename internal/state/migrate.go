package state

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

const migrateDefaultTable = "schema_migrations"

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded migrations for the DB's dialect.
func Migrate(db *DB) error {
	if db == nil || db.SQL == nil {
		return fmt.Errorf("migrate: nil db")
	}

	fsPath := "migrations/" + string(db.Dialect)
	sourceDriver, err := iofs.New(migrationsFS, fsPath)
	if err != nil {
		return fmt.Errorf("migrate %s: init source: %w", fsPath, err)
	}

	var dbDriver migratedb.Driver
	switch db.Dialect {
	case DialectSQLite:
		dbDriver, err = migratesqlite.WithInstance(db.SQL, &migratesqlite.Config{
			MigrationsTable: migrateDefaultTable,
		})
	case DialectPostgres:
		dbDriver, err = migratepostgres.WithInstance(db.SQL, &migratepostgres.Config{
			MigrationsTable: migrateDefaultTable,
		})
	default:
		return fmt.Errorf("migrate: unsupported dialect %q", db.Dialect)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: init db driver: %w", fsPath, err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, string(db.Dialect), dbDriver)
	if err != nil {
		return fmt.Errorf("migrate %s: init migrator: %w", fsPath, err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: up: %w", fsPath, err)
	}
	return nil
}
