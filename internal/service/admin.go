package service

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/juniorsir/stream-dl/internal/config"
	"github.com/juniorsir/stream-dl/internal/gate"
	"github.com/juniorsir/stream-dl/internal/model"
	"github.com/juniorsir/stream-dl/internal/state"
)

const (
	DefaultAnalyticsDays = 30
	MaxAnalyticsDays     = 365
	analyticsTopN        = 10
)

// AdminService provides the admin operations. Reads that hit the store
// degrade to the in-memory snapshot or an empty result on error.
type AdminService struct {
	Repo        SettingsRepo
	RequestLogs RequestLogReader
	Cache       MetadataCache
	BlockList   *gate.BlockList
	RuntimeCfg  *atomic.Pointer[config.RuntimeConfig]
	GeoIP       GeoIPService
	AdminSecret *gate.SecretChecker
	Now         func() time.Time
	Logger      zerolog.Logger
}

func (s *AdminService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Login checks the admin password.
func (s *AdminService) Login(password string) error {
	if !s.AdminSecret.Enabled() {
		return &ServiceError{Code: CodeForbidden, Message: "Admin not configured."}
	}
	if !s.AdminSecret.Match(password) {
		return &ServiceError{Code: CodeUnauthorized, Message: "Invalid password"}
	}
	return nil
}

// AdminStats is the dashboard summary.
type AdminStats struct {
	CacheSize      int   `json:"cache_size"`
	CacheHits      int64 `json:"cache_hits"`
	CacheMisses    int64 `json:"cache_misses"`
	BlockedDomains int   `json:"blocked_domains"`
	RedirectMode   bool  `json:"redirect_mode"`
}

func (s *AdminService) Stats() AdminStats {
	cs := s.Cache.Stats()
	return AdminStats{
		CacheSize:      cs.Size,
		CacheHits:      cs.Hits,
		CacheMisses:    cs.Misses,
		BlockedDomains: s.BlockList.Len(),
		RedirectMode:   s.GetSettings().RedirectModeEnabled,
	}
}

// ClearCache drops every cached resolution.
func (s *AdminService) ClearCache() {
	s.Cache.Clear()
	s.Logger.Info().Msg("metadata cache cleared")
}

// ------------------------------------------------------------------
// Blocked domains
// ------------------------------------------------------------------

// ListBlockedDomains returns the active block list snapshot.
func (s *AdminService) ListBlockedDomains() []string {
	return s.BlockList.Domains()
}

// AddBlockedDomain inserts a domain (a no-op when already present) and
// swaps in the reloaded block list.
func (s *AdminService) AddBlockedDomain(domain string) error {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return invalidArg("Domain is required.")
	}
	created, err := s.Repo.AddBlockedDomain(domain)
	if err != nil {
		return internal("Failed to add domain.", err)
	}
	if created {
		s.Logger.Info().Str("domain", domain).Msg("domain blocked")
	}
	s.ReloadBlockList()
	return nil
}

// RemoveBlockedDomain deletes a domain. Removing an absent domain succeeds.
func (s *AdminService) RemoveBlockedDomain(domain string) error {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return invalidArg("Domain is required.")
	}
	if err := s.Repo.RemoveBlockedDomain(domain); err != nil && !errors.Is(err, state.ErrNotFound) {
		return internal("Failed to remove domain.", err)
	}
	s.ReloadBlockList()
	return nil
}

// ReloadBlockList rebuilds the in-memory block list from the store. On a
// store error the previous snapshot stays active.
func (s *AdminService) ReloadBlockList() {
	rows, err := s.Repo.ListBlockedDomains()
	if err != nil {
		s.Logger.Error().Err(err).Msg("load blocked domains failed, keeping previous list")
		return
	}
	domains := make([]string, 0, len(rows))
	for _, r := range rows {
		domains = append(domains, r.Domain)
	}
	s.BlockList.Replace(domains)
}

// ------------------------------------------------------------------
// Settings
// ------------------------------------------------------------------

// GetSettings returns the active runtime settings snapshot.
func (s *AdminService) GetSettings() config.RuntimeConfig {
	if cfg := s.RuntimeCfg.Load(); cfg != nil {
		return *cfg
	}
	return *config.NewDefaultRuntimeConfig()
}

// UpdateSettings persists the redirect flag and swaps in the reloaded
// snapshot. A nil value means the field was absent or not a boolean.
func (s *AdminService) UpdateSettings(redirectMode *bool) (config.RuntimeConfig, error) {
	if redirectMode == nil {
		return config.RuntimeConfig{}, invalidArg("Value must be a boolean.")
	}
	if err := s.Repo.SetSetting(config.SettingRedirectMode, *redirectMode); err != nil {
		return config.RuntimeConfig{}, internal("Failed to update settings.", err)
	}
	s.ReloadSettings()
	return s.GetSettings(), nil
}

// ReloadSettings rebuilds the runtime snapshot from the store. On a store
// error the previous snapshot (or the defaults, at startup) stays active.
func (s *AdminService) ReloadSettings() {
	values, err := s.Repo.ListSettings()
	if err != nil {
		s.Logger.Error().Err(err).Msg("load settings failed, keeping previous values")
		if s.RuntimeCfg.Load() == nil {
			s.RuntimeCfg.Store(config.NewDefaultRuntimeConfig())
		}
		return
	}
	s.RuntimeCfg.Store(config.RuntimeConfigFromSettings(values))
}

// ------------------------------------------------------------------
// Request logs and analytics
// ------------------------------------------------------------------

// ListRequestLogs returns the newest request logs first.
func (s *AdminService) ListRequestLogs(limit int) []model.RequestLog {
	logs, err := s.RequestLogs.ListRecent(limit)
	if err != nil {
		s.Logger.Error().Err(err).Msg("list request logs failed")
		return []model.RequestLog{}
	}
	return logs
}

// Analytics aggregates the trailing window of days (default 30) ending now.
// Each part degrades to an empty list independently.
func (s *AdminService) Analytics(days int) model.Analytics {
	if days <= 0 {
		days = DefaultAnalyticsDays
	}
	if days > MaxAnalyticsDays {
		days = MaxAnalyticsDays
	}
	since := s.now().UTC().AddDate(0, 0, -days)

	out := model.Analytics{
		DailyCounts:   []model.DailyCount{},
		CountryCounts: []model.CountryCount{},
		TopDomains:    []model.DomainCount{},
	}
	if daily, err := s.RequestLogs.DailyCounts(since); err != nil {
		s.Logger.Error().Err(err).Msg("analytics daily counts failed")
	} else if daily != nil {
		out.DailyCounts = daily
	}
	if countries, err := s.RequestLogs.CountryCounts(since, analyticsTopN); err != nil {
		s.Logger.Error().Err(err).Msg("analytics country counts failed")
	} else if countries != nil {
		out.CountryCounts = countries
	}
	if domains, err := s.RequestLogs.TopDomains(since, analyticsTopN); err != nil {
		s.Logger.Error().Err(err).Msg("analytics top domains failed")
	} else if domains != nil {
		out.TopDomains = domains
	}
	return out
}
