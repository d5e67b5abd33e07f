package service

import (
	"context"
	"errors"
	"net/http"
	"net/netip"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/juniorsir/stream-dl/internal/config"
	"github.com/juniorsir/stream-dl/internal/download"
	"github.com/juniorsir/stream-dl/internal/entitlement"
	"github.com/juniorsir/stream-dl/internal/metadata"
	"github.com/juniorsir/stream-dl/internal/metrics"
	"github.com/juniorsir/stream-dl/internal/model"
	"github.com/juniorsir/stream-dl/internal/netutil"
	"github.com/juniorsir/stream-dl/internal/requestlog"
)

const (
	msgURLRequired         = "URL required"
	msgResellerURLRequired = `A "url" parameter is required in the request body.`
	msgFormatRequired      = "URL and format_id required"
	msgDirectURLFailed     = "Failed to get direct URL."
	msgRedirectFailed      = "Failed to get direct URL for redirect."
	msgImageNotFound       = "Image not found"
	msgInternal            = "An internal server error occurred."
)

// MediaService runs the public pipeline: admission gates, cached metadata
// resolution, entitlement, downloads and the image proxy.
type MediaService struct {
	BlockList   BlockChecker
	Guard       TargetGuard
	Resolver    MetadataResolver
	Extractor   DirectURLResolver
	Entitlement *entitlement.Gate
	Downloads   Downloader
	Images      ImageOpener
	RequestLog  RequestRecorder // optional
	RuntimeCfg  *atomic.Pointer[config.RuntimeConfig]
	Logger      zerolog.Logger
}

// CheckTarget runs the block list and the private-network guard.
func (s *MediaService) CheckTarget(ctx context.Context, rawURL string) error {
	if err := s.BlockList.Check(rawURL); err != nil {
		return FromGate(err)
	}
	if err := s.Guard.Check(ctx, rawURL); err != nil {
		return FromGate(err)
	}
	return nil
}

// ResolveInput is a first-party resolution request.
type ResolveInput struct {
	URL      string
	ClientIP netip.Addr
}

// Resolve returns the cached-or-fresh metadata for a first-party caller and
// records one request log entry.
func (s *MediaService) Resolve(ctx context.Context, in ResolveInput) (*model.MediaInfo, error) {
	target := strings.TrimSpace(in.URL)
	if target == "" {
		return nil, invalidArg(msgURLRequired)
	}
	if err := s.CheckTarget(ctx, target); err != nil {
		return nil, err
	}
	s.record(requestlog.Record{URL: target, ClientIP: in.ClientIP, Source: model.RequestLogSourceWeb})

	info, err := s.Resolver.Resolve(ctx, metadata.NamespaceWeb, target)
	if err != nil {
		return nil, s.upstreamError(err, "", target)
	}
	return info, nil
}

// ResellerInput is a reseller resolution request.
type ResellerInput struct {
	URL      string
	Plan     string
	Caller   string
	ClientIP netip.Addr
}

// ResolveReseller resolves through the reseller namespace and applies the
// caller's plan to the result. Cached entries are plan-agnostic.
func (s *MediaService) ResolveReseller(ctx context.Context, in ResellerInput) (*model.MediaInfo, error) {
	target := strings.TrimSpace(in.URL)
	if target == "" {
		return nil, invalidArg(msgResellerURLRequired)
	}
	if err := s.CheckTarget(ctx, target); err != nil {
		return nil, err
	}
	s.record(requestlog.Record{
		URL:      target,
		ClientIP: in.ClientIP,
		Source:   model.RequestLogSourceReseller,
		Caller:   strings.TrimSpace(in.Caller),
	})

	info, err := s.Resolver.Resolve(ctx, metadata.NamespaceReseller, target)
	if err != nil {
		return nil, s.upstreamError(err, "", target)
	}
	filtered, err := s.Entitlement.Apply(in.Plan, info)
	if err != nil {
		metrics.IncGateRejection("entitlement")
		return nil, fromUpstream(err, "")
	}
	return filtered, nil
}

// DirectURL resolves the media URL of one format.
func (s *MediaService) DirectURL(ctx context.Context, rawURL, formatID string) (string, error) {
	target := strings.TrimSpace(rawURL)
	formatID = strings.TrimSpace(formatID)
	if target == "" || formatID == "" {
		return "", invalidArg(msgFormatRequired)
	}
	if err := s.CheckTarget(ctx, target); err != nil {
		return "", err
	}
	direct, err := s.Extractor.DirectURL(ctx, target, formatID)
	if err != nil {
		return "", s.upstreamError(err, msgDirectURLFailed, target)
	}
	return direct, nil
}

// RedirectMode reports whether downloads are answered with a redirect.
func (s *MediaService) RedirectMode() bool {
	if s.RuntimeCfg == nil {
		return false
	}
	cfg := s.RuntimeCfg.Load()
	return cfg != nil && cfg.RedirectModeEnabled
}

func (s *MediaService) checkDownload(ctx context.Context, req *download.Request) error {
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return invalidArg(msgFormatRequired)
	}
	if _, err := req.Selector(); err != nil {
		return invalidArg(msgFormatRequired)
	}
	return s.CheckTarget(ctx, req.URL)
}

// DownloadRedirect resolves the location for a redirect-mode download.
func (s *MediaService) DownloadRedirect(ctx context.Context, req download.Request) (string, error) {
	if err := s.checkDownload(ctx, &req); err != nil {
		return "", err
	}
	location, err := s.Downloads.DirectURL(ctx, req)
	if err != nil {
		return "", s.upstreamError(err, msgRedirectFailed, req.URL)
	}
	return location, nil
}

// DownloadStream streams the selected format into w. An error is returned
// only while w is still untouched.
func (s *MediaService) DownloadStream(ctx context.Context, w http.ResponseWriter, req download.Request) error {
	if err := s.checkDownload(ctx, &req); err != nil {
		return err
	}
	if err := s.Downloads.Stream(ctx, w, req); err != nil {
		if errors.Is(err, download.ErrMissingFormat) {
			return invalidArg(msgFormatRequired)
		}
		s.Logger.Warn().Err(err).Str("url", req.URL).Msg("stream failed before first byte")
		return internal(msgInternal, err)
	}
	return nil
}

// OpenImage fetches an image for the proxy. Every upstream failure,
// including a non-image content type, is reported as NOT_FOUND.
func (s *MediaService) OpenImage(ctx context.Context, rawURL string) (*netutil.Stream, error) {
	target := strings.TrimSpace(rawURL)
	if target == "" {
		return nil, invalidArg(msgURLRequired)
	}
	if err := s.CheckTarget(ctx, target); err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Referer", target)
	img, err := s.Images.Open(ctx, target, header)
	if err != nil {
		s.Logger.Debug().Err(err).Str("url", target).Msg("image fetch failed")
		return nil, &ServiceError{Code: CodeNotFound, Message: msgImageNotFound, Err: err}
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(img.ContentType)), "image/") {
		img.Body.Close()
		return nil, notFound(msgImageNotFound)
	}
	return img, nil
}

func (s *MediaService) record(rec requestlog.Record) {
	if s.RequestLog != nil {
		s.RequestLog.Log(rec)
	}
}

func (s *MediaService) upstreamError(err error, override, target string) *ServiceError {
	se := fromUpstream(err, override)
	if se.Code == CodeInternal {
		s.Logger.Error().Err(err).Str("url", target).Msg("resolution failed")
	}
	return se
}
