package geoip

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu      sync.Mutex
	country string
	closed  bool
}

func (r *fakeReader) Lookup(netip.Addr) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.country
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func openAs(country string) OpenFunc {
	return func(string) (Reader, error) { return &fakeReader{country: country}, nil }
}

// fetcher serves canned bodies by URL. With gate set, each call first
// announces itself on started and then waits for gate to close.
type fetcher struct {
	mu      sync.Mutex
	bodies  map[string][]byte
	calls   []string
	started chan struct{}
	gate    chan struct{}
}

func (f *fetcher) Download(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	body, ok := f.bodies[url]
	f.mu.Unlock()
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.gate != nil {
		<-f.gate
	}
	if !ok {
		return nil, errors.New("fetcher: no body for " + url)
	}
	return body, nil
}

func (f *fetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

const (
	dbURL  = "https://geo.example/country.mmdb"
	sumURL = "https://geo.example/country.mmdb.sha256"
)

var addr = netip.MustParseAddr("203.0.113.7")

func sumLine(data []byte) []byte {
	sum := sha256.Sum256(data)
	return []byte(hex.EncodeToString(sum[:]) + "  GeoLite2-Country.mmdb\n")
}

func newTestService(dir string, f *fetcher, withSum bool, open OpenFunc) *Service {
	s := &Service{
		cacheDir:   dir,
		dbFilename: DefaultDBFilename,
		dbURL:      dbURL,
		openDB:     open,
		downloader: f,
	}
	if withSum {
		s.sha256URL = sumURL
	}
	return s
}

func writeDB(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, DefaultDBFilename)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLookup_NoReader(t *testing.T) {
	assert.Empty(t, (&Service{}).Lookup(addr))
}

func TestNewService_DefaultScheduleIsWeeklyWednesday(t *testing.T) {
	s := NewService(ServiceConfig{CacheDir: t.TempDir(), OpenDB: NoOpOpen})
	defer s.Stop()

	assert.Equal(t, DefaultDBFilename, s.dbFilename)
	entry := s.cron.Entry(s.entryID)
	require.NotNil(t, entry.Schedule)

	monday := time.Date(2026, 1, 5, 6, 30, 0, 0, time.Local)
	assert.Equal(t, time.Date(2026, 1, 7, 7, 0, 0, 0, time.Local), entry.Schedule.Next(monday))
}

func TestNewService_InvalidScheduleDisablesRefresh(t *testing.T) {
	s := NewService(ServiceConfig{CacheDir: t.TempDir(), OpenDB: NoOpOpen, UpdateSchedule: "not a cron"})
	defer s.Stop()
	assert.Zero(t, s.entryID)
	assert.True(t, s.NextScheduledUpdate().IsZero())
}

func TestStale(t *testing.T) {
	s := NewService(ServiceConfig{CacheDir: t.TempDir(), OpenDB: NoOpOpen})
	defer s.Stop()

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.Local)
	assert.False(t, s.stale(now.Add(-10*24*time.Hour), now))
	assert.True(t, s.stale(now.Add(-15*24*time.Hour), now))

	unscheduled := &Service{cron: s.cron}
	assert.False(t, unscheduled.stale(now.Add(-30*24*time.Hour), now))
	assert.True(t, unscheduled.stale(now.Add(-65*24*time.Hour), now))
}

func TestLoad_SwapsAndClosesPrevious(t *testing.T) {
	old := &fakeReader{country: "US"}
	s := &Service{reader: old, openDB: openAs("JP")}

	require.NoError(t, s.load("/unused"))
	assert.Equal(t, "JP", s.Lookup(addr))
	assert.True(t, old.isClosed())
}

func TestLoad_ConcurrentLookups(t *testing.T) {
	s := &Service{reader: &fakeReader{country: "US"}, openDB: openAs("JP")}

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := s.Lookup(addr)
			assert.Contains(t, []string{"US", "JP"}, got)
		}()
	}
	require.NoError(t, s.load("/unused"))
	wg.Wait()
}

func TestStop_ReleasesReader(t *testing.T) {
	r := &fakeReader{country: "CN"}
	s := &Service{reader: r}
	s.Stop()
	s.Stop()

	assert.True(t, r.isClosed())
	assert.Empty(t, s.Lookup(addr))
}

func TestParseChecksum(t *testing.T) {
	digest := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	cases := map[string]string{
		digest + "  GeoLite2-Country.mmdb\n": digest,
		strings.ToUpper(digest):              digest,
		"  " + digest:                        digest,
		"abc  file":                          "",
		strings.Repeat("z", 64):              "",
		"":                                   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, parseChecksum([]byte(in)), "input %q", in)
	}
}

func TestVerifyChecksum(t *testing.T) {
	data := []byte("hello world")
	assert.NoError(t, verifyChecksum(data, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"))
	assert.NoError(t, verifyChecksum(data, "B94D27B9934D3E08A52E52D7DA7DABFAC484EFE37A5380EE9088F7ACE2EFCDE9"))

	var mismatch *ChecksumError
	require.ErrorAs(t, verifyChecksum(data, strings.Repeat("0", 64)), &mismatch)
	assert.Equal(t, strings.Repeat("0", 64), mismatch.Want)
}

func TestUpdateNow_InstallsVerifiedDatabase(t *testing.T) {
	dir := t.TempDir()
	content := []byte("fresh-country-db")
	f := &fetcher{bodies: map[string][]byte{dbURL: content, sumURL: sumLine(content)}}

	var openedPath string
	s := newTestService(dir, f, true, func(path string) (Reader, error) {
		openedPath = path
		return &fakeReader{country: "DE"}, nil
	})

	require.NoError(t, s.UpdateNow())

	installed, err := os.ReadFile(filepath.Join(dir, DefaultDBFilename))
	require.NoError(t, err)
	assert.Equal(t, content, installed)
	assert.Contains(t, filepath.Base(openedPath), ".tmp.", "trial open must use the staged file")
	assert.Equal(t, "DE", s.Lookup(addr))

	leftovers, _ := filepath.Glob(filepath.Join(dir, "*.tmp.*"))
	assert.Empty(t, leftovers)
	assert.False(t, s.LastUpdated().IsZero())
}

func TestUpdateNow_SkipsChecksumWhenUnset(t *testing.T) {
	f := &fetcher{bodies: map[string][]byte{dbURL: []byte("db")}}
	s := newTestService(t.TempDir(), f, false, openAs("FR"))

	require.NoError(t, s.UpdateNow())
	assert.Equal(t, 1, f.callCount())
}

func TestUpdateNow_ChecksumMismatchKeepsCurrent(t *testing.T) {
	dir := t.TempDir()
	path := writeDB(t, dir, "current-db")
	f := &fetcher{bodies: map[string][]byte{
		dbURL:  []byte("tampered-db"),
		sumURL: sumLine([]byte("something else")),
	}}
	s := newTestService(dir, f, true, func(string) (Reader, error) {
		t.Fatal("open must not run after a checksum mismatch")
		return nil, nil
	})

	var mismatch *ChecksumError
	require.ErrorAs(t, s.UpdateNow(), &mismatch)
	got, _ := os.ReadFile(path)
	assert.Equal(t, "current-db", string(got))
}

func TestUpdateNow_UnparsableChecksumFile(t *testing.T) {
	f := &fetcher{bodies: map[string][]byte{dbURL: []byte("db"), sumURL: []byte("<html>")}}
	s := newTestService(t.TempDir(), f, true, openAs("FR"))

	err := s.UpdateNow()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sha256 digest")
}

func TestUpdateNow_UnreadableDownloadKeepsCurrent(t *testing.T) {
	dir := t.TempDir()
	path := writeDB(t, dir, "current-db")
	f := &fetcher{bodies: map[string][]byte{dbURL: []byte("<html>rate limited</html>")}}
	s := newTestService(dir, f, false, MaxMindOpen)

	err := s.UpdateNow()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreadable")
	got, _ := os.ReadFile(path)
	assert.Equal(t, "current-db", string(got))
}

func TestUpdateNow_MissingDependencies(t *testing.T) {
	dir := t.TempDir()
	f := &fetcher{}
	assert.ErrorIs(t, (&Service{cacheDir: dir, dbURL: dbURL, openDB: NoOpOpen}).UpdateNow(), errNoDownloader)
	assert.ErrorIs(t, (&Service{cacheDir: dir, downloader: f, openDB: NoOpOpen}).UpdateNow(), errNoDBURL)
	assert.ErrorIs(t, (&Service{cacheDir: dir, dbURL: dbURL, downloader: f}).UpdateNow(), errNoOpenFunc)
	assert.Zero(t, f.callCount())
}

func TestUpdateNow_AfterStopIsCanceled(t *testing.T) {
	f := &fetcher{}
	s := NewService(ServiceConfig{CacheDir: t.TempDir(), DBURL: dbURL, OpenDB: NoOpOpen, Downloader: f})
	s.Stop()

	assert.ErrorIs(t, s.UpdateNow(), context.Canceled)
	assert.Zero(t, f.callCount())
}

func TestStart_StatFailure(t *testing.T) {
	s := NewService(ServiceConfig{CacheDir: t.TempDir(), DBFilename: "bad\x00name", OpenDB: NoOpOpen})
	defer s.Stop()

	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stat db")
}

func TestStart_LoadsFreshCacheWithoutDownloading(t *testing.T) {
	dir := t.TempDir()
	writeDB(t, dir, "db")
	f := &fetcher{}
	s := NewService(ServiceConfig{CacheDir: dir, DBURL: dbURL, OpenDB: openAs("BR"), Downloader: f})
	defer s.Stop()

	assert.True(t, s.NextScheduledUpdate().IsZero())
	require.NoError(t, s.Start())
	assert.Equal(t, "BR", s.Lookup(addr))
	assert.True(t, s.NextScheduledUpdate().After(time.Now()))
	assert.Zero(t, f.callCount())
}

func TestStart_MissingCacheDownloadsInBackground(t *testing.T) {
	f := &fetcher{started: make(chan struct{}, 1)}
	s := NewService(ServiceConfig{CacheDir: t.TempDir(), DBURL: dbURL, OpenDB: NoOpOpen, Downloader: f})
	defer s.Stop()

	require.NoError(t, s.Start())
	select {
	case <-f.started:
	case <-time.After(time.Second):
		t.Fatal("no background download for a missing database")
	}
}

func TestStop_WaitsForInFlightUpdate(t *testing.T) {
	old := &fakeReader{country: "US"}
	f := &fetcher{started: make(chan struct{}, 1), gate: make(chan struct{})}
	s := NewService(ServiceConfig{CacheDir: t.TempDir(), DBURL: dbURL, OpenDB: NoOpOpen, Downloader: f})
	s.reader = old

	updated := make(chan error, 1)
	go func() { updated <- s.UpdateNow() }()
	select {
	case <-f.started:
	case <-time.After(time.Second):
		t.Fatal("update did not start")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned while an update was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(f.gate)
	assert.Error(t, <-updated)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the update finished")
	}
	assert.True(t, old.isClosed())
	assert.Empty(t, s.Lookup(addr))
}

func TestMMDBReader_InvalidAddr(t *testing.T) {
	assert.Empty(t, (&mmdbReader{}).Lookup(netip.Addr{}))
}
