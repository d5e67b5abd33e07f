// Package service holds the operations behind the HTTP handlers: the media
// pipeline (gates, resolution, entitlement, downloads, image proxy) and the
// admin surface. Concrete dependencies are wired in main.
package service

import (
	"context"
	"net/http"
	"net/netip"
	"time"

	"github.com/juniorsir/stream-dl/internal/download"
	"github.com/juniorsir/stream-dl/internal/metadata"
	"github.com/juniorsir/stream-dl/internal/model"
	"github.com/juniorsir/stream-dl/internal/netutil"
	"github.com/juniorsir/stream-dl/internal/requestlog"
)

// TargetGuard vets a user-supplied URL before any outbound work.
type TargetGuard interface {
	Check(ctx context.Context, rawURL string) error
}

// BlockChecker rejects URLs on the admin block list.
type BlockChecker interface {
	Check(rawURL string) error
}

// MetadataResolver is satisfied by *metadata.Resolver.
type MetadataResolver interface {
	Resolve(ctx context.Context, ns metadata.Namespace, target string) (*model.MediaInfo, error)
}

// DirectURLResolver is satisfied by *extract.Extractor.
type DirectURLResolver interface {
	DirectURL(ctx context.Context, target, selector string) (string, error)
}

// Downloader is satisfied by *download.Dispatcher.
type Downloader interface {
	DirectURL(ctx context.Context, req download.Request) (string, error)
	Stream(ctx context.Context, w http.ResponseWriter, req download.Request) error
}

// ImageOpener is satisfied by *netutil.DirectDownloader.
type ImageOpener interface {
	Open(ctx context.Context, url string, header http.Header) (*netutil.Stream, error)
}

// RequestRecorder is satisfied by *requestlog.Service.
type RequestRecorder interface {
	Log(rec requestlog.Record)
}

// SettingsRepo is satisfied by *state.StateRepo.
type SettingsRepo interface {
	ListSettings() (map[string]bool, error)
	SetSetting(key string, value bool) error
	ListBlockedDomains() ([]model.BlockedDomain, error)
	AddBlockedDomain(domain string) (created bool, err error)
	RemoveBlockedDomain(domain string) error
}

// RequestLogReader is satisfied by *requestlog.Repo.
type RequestLogReader interface {
	ListRecent(limit int) ([]model.RequestLog, error)
	DailyCounts(since time.Time) ([]model.DailyCount, error)
	CountryCounts(since time.Time, limit int) ([]model.CountryCount, error)
	TopDomains(since time.Time, limit int) ([]model.DomainCount, error)
}

// MetadataCache is satisfied by *metadata.Resolver.
type MetadataCache interface {
	Stats() metadata.Stats
	Clear()
}

// GeoIPService is satisfied by *geoip.Service.
type GeoIPService interface {
	Lookup(ip netip.Addr) string
	LastUpdated() time.Time
	NextScheduledUpdate() time.Time
	UpdateNow() error
}
