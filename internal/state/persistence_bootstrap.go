package state

import (
	"fmt"
)

// PersistenceBootstrap opens the database addressed by dsn, applies
// migrations, inserts default settings and seeds the block list. Any failure
// is fatal for startup; the caller owns the returned DB.
func PersistenceBootstrap(dsn string, defaults map[string]bool, seedDomains []string) (*DB, *StateRepo, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}

	repo := NewStateRepo(db)
	if err := repo.EnsureDefaultSettings(defaults); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("default settings: %w", err)
	}
	for _, domain := range seedDomains {
		if _, err := repo.AddBlockedDomain(domain); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("seed blocked domain %q: %w", domain, err)
		}
	}
	return db, repo, nil
}
