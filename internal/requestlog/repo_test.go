package requestlog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juniorsir/stream-dl/internal/model"
	"github.com/juniorsir/stream-dl/internal/state"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	db, _, err := state.PersistenceBootstrap(filepath.Join(t.TempDir(), "logs.db"), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepo(db)
}

func entry(id, url, domain, country string, ts time.Time) model.RequestLog {
	return model.RequestLog{
		ID:          id,
		URL:         url,
		Domain:      domain,
		Timestamp:   ts,
		CountryCode: country,
		Source:      model.RequestLogSourceWeb,
	}
}

func TestRepo_InsertAndListRecent(t *testing.T) {
	repo := newTestRepo(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	n, err := repo.InsertBatch([]model.RequestLog{
		entry("a", "https://youtube.com/watch?v=1", "youtube.com", "US", base),
		entry("b", "https://vimeo.com/2", "vimeo.com", "", base.Add(time.Minute)),
		{
			ID: "c", URL: "https://youtube.com/watch?v=3", Domain: "youtube.com",
			Timestamp: base.Add(2 * time.Minute), Source: model.RequestLogSourceReseller, Caller: "acme",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Duplicate ids are ignored.
	n, err = repo.InsertBatch([]model.RequestLog{entry("a", "x", "x", "", base)})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	list, err := repo.ListRecent(0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, model.RequestLogSourceReseller, list[0].Source)
	assert.Equal(t, "acme", list[0].Caller)
	assert.Equal(t, "", list[1].CountryCode)
	assert.Equal(t, "US", list[2].CountryCode)
	assert.True(t, list[2].Timestamp.Equal(base))

	limited, err := repo.ListRecent(1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "c", limited[0].ID)
}

func TestRepo_Aggregates(t *testing.T) {
	repo := newTestRepo(t)
	day1 := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := repo.InsertBatch([]model.RequestLog{
		entry("1", "u", "youtube.com", "US", day1),
		entry("2", "u", "youtube.com", "US", day2),
		entry("3", "u", "vimeo.com", "DE", day2),
		entry("4", "u", "youtube.com", "", day2),
		entry("5", "u", "tiktok.com", "FR", old),
	})
	require.NoError(t, err)

	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	daily, err := repo.DailyCounts(since)
	require.NoError(t, err)
	assert.Equal(t, []model.DailyCount{
		{Date: "2026-03-01", Count: 1},
		{Date: "2026-03-02", Count: 3},
	}, daily)

	countries, err := repo.CountryCounts(since, 10)
	require.NoError(t, err)
	assert.Equal(t, []model.CountryCount{
		{CountryCode: "US", Count: 2},
		{CountryCode: "DE", Count: 1},
	}, countries)

	domains, err := repo.TopDomains(since, 1)
	require.NoError(t, err)
	assert.Equal(t, []model.DomainCount{{Domain: "youtube.com", Count: 3}}, domains)
}

func TestRepo_AggregatesEmpty(t *testing.T) {
	repo := newTestRepo(t)
	daily, err := repo.DailyCounts(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.NotNil(t, daily)
	assert.Empty(t, daily)
}

func TestRepo_Prune(t *testing.T) {
	repo := newTestRepo(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := repo.InsertBatch([]model.RequestLog{
		entry("old", "u", "d", "", now.Add(-100*24*time.Hour)),
		entry("new", "u", "d", "", now.Add(-time.Hour)),
	})
	require.NoError(t, err)

	p, err := NewPruner(repo, 90*24*time.Hour, "30 3 * * *")
	require.NoError(t, err)
	p.now = func() time.Time { return now }

	n, err := p.PruneNow()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	list, err := repo.ListRecent(10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].ID)
}

func TestNewPruner_InvalidSchedule(t *testing.T) {
	_, err := NewPruner(nil, time.Hour, "not a cron")
	require.Error(t, err)
}

func TestPruner_DisabledRetention(t *testing.T) {
	p, err := NewPruner(nil, 0, "garbage is ignored")
	require.NoError(t, err)
	n, err := p.PruneNow()
	require.NoError(t, err)
	assert.Zero(t, n)
	p.Start()
	p.Stop()
}
