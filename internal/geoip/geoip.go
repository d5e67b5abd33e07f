// Package geoip maps client addresses to country codes for request
// analytics. The country database is refreshed on a cron schedule and
// swapped in without blocking lookups.
package geoip

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/juniorsir/stream-dl/internal/log"
	"github.com/juniorsir/stream-dl/internal/netutil"
)

const (
	DefaultDBFilename     = "country.mmdb"
	DefaultUpdateSchedule = "0 7 * * 3"

	// fallbackStaleAge applies when the schedule cannot be inspected.
	fallbackStaleAge = 64 * 24 * time.Hour
)

type ServiceConfig struct {
	CacheDir       string
	DBFilename     string
	DBURL          string
	SHA256URL      string // optional sha256sum-style file for DBURL
	UpdateSchedule string
	OpenDB         OpenFunc
	Downloader     netutil.Downloader
}

// Service owns the live Reader. Lookups take a read lock; installing a new
// reader takes the write lock and closes the old one after readers drain.
type Service struct {
	mu     sync.RWMutex
	reader Reader

	cacheDir   string
	dbFilename string
	dbURL      string
	sha256URL  string
	openDB     OpenFunc
	downloader netutil.Downloader

	cron    *cron.Cron
	entryID cron.EntryID

	updateMu   sync.Mutex
	lifeCtx    context.Context
	lifeCancel context.CancelFunc
	logger     zerolog.Logger
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.DBFilename == "" {
		cfg.DBFilename = DefaultDBFilename
	}
	if cfg.UpdateSchedule == "" {
		cfg.UpdateSchedule = DefaultUpdateSchedule
	}
	lifeCtx, lifeCancel := context.WithCancel(context.Background())
	s := &Service{
		cacheDir:   cfg.CacheDir,
		dbFilename: cfg.DBFilename,
		dbURL:      cfg.DBURL,
		sha256URL:  cfg.SHA256URL,
		openDB:     cfg.OpenDB,
		downloader: cfg.Downloader,
		cron:       cron.New(),
		lifeCtx:    lifeCtx,
		lifeCancel: lifeCancel,
		logger:     log.WithComponent("geoip"),
	}
	id, err := s.cron.AddFunc(cfg.UpdateSchedule, func() {
		if err := s.UpdateNow(); err != nil {
			s.logger.Error().Err(err).Msg("scheduled update failed")
		}
	})
	if err != nil {
		s.logger.Error().Err(err).Str("schedule", cfg.UpdateSchedule).Msg("invalid update schedule, refresh disabled")
	} else {
		s.entryID = id
	}
	return s
}

func (s *Service) dbPath() string { return filepath.Join(s.cacheDir, s.dbFilename) }

func (s *Service) lifetime() context.Context {
	if s.lifeCtx == nil {
		return context.Background()
	}
	return s.lifeCtx
}

// Start opens the cached database when one exists and starts the refresh
// schedule. A missing or stale database is fetched in the background, so
// lookups return "" until the first download lands.
func (s *Service) Start() error {
	path := s.dbPath()
	st, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		s.logger.Info().Str("path", path).Msg("no cached database, downloading")
		s.refreshAsync()
	case err != nil:
		return fmt.Errorf("geoip: stat db %s: %w", path, err)
	default:
		if err := s.load(path); err != nil {
			s.logger.Warn().Err(err).Msg("cached database unreadable")
		}
		if s.stale(st.ModTime(), time.Now()) {
			s.logger.Info().Time("mtime", st.ModTime()).Msg("cached database is stale, refreshing")
			s.refreshAsync()
		}
	}
	s.cron.Start()
	return nil
}

func (s *Service) refreshAsync() {
	go func() {
		if err := s.UpdateNow(); err != nil {
			s.logger.Warn().Err(err).Msg("background update failed")
		}
	}()
}

// stale reports whether mtime has missed two scheduled refreshes.
func (s *Service) stale(mtime, now time.Time) bool {
	maxAge := fallbackStaleAge
	if e := s.cron.Entry(s.entryID); e.ID != 0 && e.Schedule != nil {
		next := e.Schedule.Next(now)
		if gap := e.Schedule.Next(next).Sub(next); gap > 0 {
			maxAge = 2 * gap
		}
	}
	return now.Sub(mtime) > maxAge
}

// Stop halts the schedule, waits for an in-flight update and releases the
// reader. Safe to call without Start and more than once.
func (s *Service) Stop() {
	if s.lifeCancel != nil {
		s.lifeCancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.updateMu.Lock()
	defer s.updateMu.Unlock()
	s.install(nil)
}

// Lookup returns the country code for ip, or "" when unknown.
func (s *Service) Lookup(ip netip.Addr) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.reader == nil {
		return ""
	}
	return s.reader.Lookup(ip)
}

// LastUpdated is the mtime of the installed database file.
func (s *Service) LastUpdated() time.Time {
	st, err := os.Stat(s.dbPath())
	if err != nil {
		return time.Time{}
	}
	return st.ModTime()
}

// NextScheduledUpdate is zero until Start.
func (s *Service) NextScheduledUpdate() time.Time {
	if s.cron == nil || s.entryID == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

func (s *Service) load(path string) error {
	if s.openDB == nil {
		return errNoOpenFunc
	}
	r, err := s.openDB(path)
	if err != nil {
		return fmt.Errorf("geoip: open %s: %w", path, err)
	}
	s.install(r)
	return nil
}

func (s *Service) install(r Reader) {
	s.mu.Lock()
	old := s.reader
	s.reader = r
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
}
