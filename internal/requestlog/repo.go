// Package requestlog records one row per resolution request and serves the
// admin listing and analytics aggregates over them. Writes are asynchronous
// and batched; see Service.
package requestlog

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"

	"github.com/juniorsir/stream-dl/internal/log"
	"github.com/juniorsir/stream-dl/internal/model"
	"github.com/juniorsir/stream-dl/internal/state"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Repo reads and writes the request_logs table.
type Repo struct {
	db     *state.DB
	logger zerolog.Logger
}

// NewRepo creates a Repo over an already migrated database.
func NewRepo(db *state.DB) *Repo {
	return &Repo{db: db, logger: log.WithComponent("requestlog")}
}

// InsertBatch inserts entries in a single transaction. Rows that fail
// individually are skipped; duplicate ids are ignored. Returns the number of
// rows inserted.
func (r *Repo) InsertBatch(entries []model.RequestLog) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := r.db.SQL.Begin()
	if err != nil {
		return 0, fmt.Errorf("requestlog repo begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	inserted := 0
	for i := range entries {
		e := &entries[i]
		ts := e.Timestamp.UTC()
		res, err := r.db.Builder.Insert("request_logs").
			Columns("id", "url", "domain", "ts_ns", "day", "country_code", "source", "caller").
			Values(e.ID, e.URL, e.Domain, ts.UnixNano(), ts.Format(time.DateOnly),
				nullString(e.CountryCode), string(e.Source), e.Caller).
			Suffix("ON CONFLICT (id) DO NOTHING").
			RunWith(tx).
			Exec()
		if err != nil {
			// Postgres aborts the transaction on error, so bail out there.
			if r.db.Dialect == state.DialectPostgres {
				return 0, fmt.Errorf("requestlog repo insert id=%q: %w", e.ID, err)
			}
			r.logger.Warn().Err(err).Str("id", e.ID).Msg("skip log row, insert failed")
			continue
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("requestlog repo commit: %w", err)
	}
	return inserted, nil
}

// ListRecent returns the newest entries first. limit defaults to 50 and is
// capped at 500.
func (r *Repo) ListRecent(limit int) ([]model.RequestLog, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := r.db.Builder.
		Select("id", "url", "domain", "ts_ns", "country_code", "source", "caller").
		From("request_logs").
		OrderBy("ts_ns DESC", "id ASC").
		Limit(uint64(limit)).
		RunWith(r.db.SQL).
		Query()
	if err != nil {
		return nil, fmt.Errorf("requestlog list: %w", err)
	}
	defer rows.Close()

	out := make([]model.RequestLog, 0, limit)
	for rows.Next() {
		var (
			e       model.RequestLog
			tsNs    int64
			country sql.NullString
			source  string
		)
		if err := rows.Scan(&e.ID, &e.URL, &e.Domain, &tsNs, &country, &source, &e.Caller); err != nil {
			r.logger.Warn().Err(err).Msg("skip malformed log row during scan")
			continue
		}
		e.Timestamp = time.Unix(0, tsNs).UTC()
		e.CountryCode = country.String
		e.Source = model.RequestLogSource(source)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DailyCounts returns per-UTC-day request counts since the given time,
// oldest day first.
func (r *Repo) DailyCounts(since time.Time) ([]model.DailyCount, error) {
	rows, err := r.db.Builder.
		Select("day", "COUNT(*) AS n").
		From("request_logs").
		Where(sq.GtOrEq{"ts_ns": since.UnixNano()}).
		GroupBy("day").
		OrderBy("day ASC").
		RunWith(r.db.SQL).
		Query()
	if err != nil {
		return nil, fmt.Errorf("requestlog daily counts: %w", err)
	}
	defer rows.Close()

	out := []model.DailyCount{}
	for rows.Next() {
		var c model.DailyCount
		if err := rows.Scan(&c.Date, &c.Count); err != nil {
			return nil, fmt.Errorf("requestlog daily counts scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountryCounts returns the top countries by request count since the given
// time. Rows without a country are excluded.
func (r *Repo) CountryCounts(since time.Time, limit int) ([]model.CountryCount, error) {
	rows, err := r.topBy("country_code", since, limit, sq.NotEq{"country_code": nil})
	if err != nil {
		return nil, fmt.Errorf("requestlog country counts: %w", err)
	}
	defer rows.Close()

	out := []model.CountryCount{}
	for rows.Next() {
		var c model.CountryCount
		if err := rows.Scan(&c.CountryCode, &c.Count); err != nil {
			return nil, fmt.Errorf("requestlog country counts scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// TopDomains returns the most requested registrable domains since the given
// time.
func (r *Repo) TopDomains(since time.Time, limit int) ([]model.DomainCount, error) {
	rows, err := r.topBy("domain", since, limit, sq.NotEq{"domain": ""})
	if err != nil {
		return nil, fmt.Errorf("requestlog top domains: %w", err)
	}
	defer rows.Close()

	out := []model.DomainCount{}
	for rows.Next() {
		var c model.DomainCount
		if err := rows.Scan(&c.Domain, &c.Count); err != nil {
			return nil, fmt.Errorf("requestlog top domains scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repo) topBy(column string, since time.Time, limit int, filter sq.Sqlizer) (*sql.Rows, error) {
	if limit <= 0 {
		limit = 10
	}
	return r.db.Builder.
		Select(column, "COUNT(*) AS n").
		From("request_logs").
		Where(sq.GtOrEq{"ts_ns": since.UnixNano()}).
		Where(filter).
		GroupBy(column).
		OrderBy("n DESC", column+" ASC").
		Limit(uint64(limit)).
		RunWith(r.db.SQL).
		Query()
}

// Prune deletes entries older than before and returns how many were removed.
func (r *Repo) Prune(before time.Time) (int64, error) {
	res, err := r.db.Builder.Delete("request_logs").
		Where(sq.Lt{"ts_ns": before.UnixNano()}).
		RunWith(r.db.SQL).
		Exec()
	if err != nil {
		return 0, fmt.Errorf("requestlog prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
