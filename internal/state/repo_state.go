package state

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/juniorsir/stream-dl/internal/model"
)

// StateRepo provides CRUD for the settings and blocked_domains tables.
// All writes are serialized by an internal mutex.
type StateRepo struct {
	db  *DB
	mu  sync.Mutex
	now func() time.Time
}

// NewStateRepo creates a StateRepo for the given database.
func NewStateRepo(db *DB) *StateRepo {
	return &StateRepo{db: db, now: time.Now}
}

// --- settings ---

// ListSettings returns all persisted flags keyed by name.
func (r *StateRepo) ListSettings() (map[string]bool, error) {
	rows, err := r.db.Builder.Select("key", "value").From("settings").RunWith(r.db.SQL).Query()
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var key string
		var value bool
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan settings: %w", err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}
	return out, nil
}

// EnsureDefaultSettings inserts each default that has no row yet. Existing
// values are left untouched.
func (r *StateRepo) EnsureDefaultSettings(defaults map[string]bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.SQL.Begin()
	if err != nil {
		return fmt.Errorf("begin settings tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for key, value := range defaults {
		_, err := r.db.Builder.Insert("settings").
			Columns("key", "value").
			Values(key, value).
			Suffix("ON CONFLICT (key) DO NOTHING").
			RunWith(tx).
			Exec()
		if err != nil {
			return fmt.Errorf("insert default setting %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// SetSetting upserts a single flag.
func (r *StateRepo) SetSetting(key string, value bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Builder.Insert("settings").
		Columns("key", "value").
		Values(key, value).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = excluded.value").
		RunWith(r.db.SQL).
		Exec()
	if err != nil {
		return fmt.Errorf("upsert setting %s: %w", key, err)
	}
	return nil
}

// --- blocked_domains ---

// ListBlockedDomains returns all blocked domains ordered by creation time.
func (r *StateRepo) ListBlockedDomains() ([]model.BlockedDomain, error) {
	rows, err := r.db.Builder.Select("domain", "created_at_ns").
		From("blocked_domains").
		OrderBy("created_at_ns ASC", "id ASC").
		RunWith(r.db.SQL).
		Query()
	if err != nil {
		return nil, fmt.Errorf("query blocked_domains: %w", err)
	}
	defer rows.Close()

	var out []model.BlockedDomain
	for rows.Next() {
		var d model.BlockedDomain
		var createdAtNs int64
		if err := rows.Scan(&d.Domain, &createdAtNs); err != nil {
			return nil, fmt.Errorf("scan blocked_domains: %w", err)
		}
		d.CreatedAt = time.Unix(0, createdAtNs).UTC()
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocked_domains: %w", err)
	}
	return out, nil
}

// AddBlockedDomain inserts domain (trimmed). Returns created=false when the
// domain was already present.
func (r *StateRepo) AddBlockedDomain(domain string) (created bool, err error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return false, fmt.Errorf("add blocked domain: empty domain")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Builder.Insert("blocked_domains").
		Columns("domain", "created_at_ns").
		Values(domain, r.now().UnixNano()).
		Suffix("ON CONFLICT (domain) DO NOTHING").
		RunWith(r.db.SQL).
		Exec()
	if err != nil {
		return false, fmt.Errorf("insert blocked domain: %w", err)
	}
	return rowsAffected(res) > 0, nil
}

// RemoveBlockedDomain deletes domain (trimmed). Returns ErrNotFound when no
// row matched.
func (r *StateRepo) RemoveBlockedDomain(domain string) error {
	domain = strings.TrimSpace(domain)

	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Builder.Delete("blocked_domains").
		Where(sq.Eq{"domain": domain}).
		RunWith(r.db.SQL).
		Exec()
	if err != nil {
		return fmt.Errorf("delete blocked domain: %w", err)
	}
	if rowsAffected(res) == 0 {
		return ErrNotFound
	}
	return nil
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
