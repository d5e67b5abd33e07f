package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/juniorsir/stream-dl/internal/gate"
	"github.com/juniorsir/stream-dl/internal/service"
)

// Deps are the collaborators the routes are wired to.
type Deps struct {
	Media  *service.MediaService
	Admin  *service.AdminService
	System service.SystemService

	Tickets        *gate.TicketIssuer
	Origin         *gate.OriginChecker
	AdminSecret    *gate.SecretChecker
	ResellerSecret *gate.SecretChecker
	APILimiter     *gate.RateLimiter
	LoginLimiter   *gate.RateLimiter

	// TrustForwardedFor makes client IPs come from X-Forwarded-For.
	TrustForwardedFor bool
	APIMaxBodyBytes   int64
	Logger            zerolog.Logger
}

// Server wraps the HTTP server and mux for the stream-dl API.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
}

// NewServer creates a new API server wired with all routes.
func NewServer(port int, deps Deps) *Server {
	return NewServerWithAddress("", port, deps)
}

// NewServerWithAddress creates a new API server with an explicit listen address.
func NewServerWithAddress(listenAddress string, port int, deps Deps) *Server {
	validate := newValidator()
	mux := http.NewServeMux()

	// Public
	mux.Handle("GET /healthz", HandleHealthz())
	mux.Handle("GET /metrics", promhttp.Handler())

	// First-party API
	api := http.NewServeMux()
	api.Handle("GET /api/v1/ticket", OriginMiddleware(deps.Origin, HandleTicket(deps.Tickets)))
	api.Handle("POST /api/v1/resolve",
		TicketMiddleware(deps.Tickets, HandleResolve(deps.Media, validate, deps.TrustForwardedFor)))
	api.Handle("POST /api/v1/resolve-url",
		TicketMiddleware(deps.Tickets, HandleResolveURL(deps.Media, validate)))
	api.Handle("GET /api/v1/download", HandleDownload(deps.Media))
	api.Handle("GET /api/v1/image-proxy", HandleImageProxy(deps.Media))

	// Reseller
	api.Handle("POST /api/v1/reseller/resolve",
		ResellerMiddleware(deps.ResellerSecret, HandleResellerResolve(deps.Media, validate, deps.TrustForwardedFor)))

	// Admin
	admin := http.NewServeMux()
	admin.Handle("GET /api/v1/admin/stats", HandleAdminStats(deps.Admin))
	admin.Handle("POST /api/v1/admin/cache/clear", HandleClearCache(deps.Admin))
	admin.Handle("GET /api/v1/admin/blocked-domains", HandleListBlockedDomains(deps.Admin))
	admin.Handle("POST /api/v1/admin/blocked-domains", HandleAddBlockedDomain(deps.Admin, validate))
	admin.Handle("DELETE /api/v1/admin/blocked-domains", HandleRemoveBlockedDomain(deps.Admin, validate))
	admin.Handle("GET /api/v1/admin/settings", HandleGetSettings(deps.Admin))
	admin.Handle("PUT /api/v1/admin/settings", HandleUpdateSettings(deps.Admin))
	admin.Handle("GET /api/v1/admin/request-logs", HandleListRequestLogs(deps.Admin))
	admin.Handle("GET /api/v1/admin/analytics", HandleAnalytics(deps.Admin))
	admin.Handle("GET /api/v1/admin/geoip/status", HandleGeoIPStatus(deps.Admin))
	admin.Handle("GET /api/v1/admin/geoip/lookup", HandleGeoIPLookup(deps.Admin))
	admin.Handle("POST /api/v1/admin/geoip/lookup", HandleGeoIPLookupPost(deps.Admin, validate))
	admin.Handle("POST /api/v1/admin/geoip/actions/update-now", HandleGeoIPUpdate(deps.Admin))
	if deps.System != nil {
		admin.Handle("GET /api/v1/admin/system/info", HandleSystemInfo(deps.System))
		admin.Handle("GET /api/v1/admin/system/config", HandleSystemConfig(deps.System))
	}

	// Login sits outside the admin check and has its own limiter.
	api.Handle("POST /api/v1/admin/login",
		RateLimitMiddleware(deps.LoginLimiter, deps.TrustForwardedFor, HandleAdminLogin(deps.Admin, validate)))
	api.Handle("/api/v1/admin/", AdminMiddleware(deps.AdminSecret, admin))

	limited := RequestBodyLimitMiddleware(deps.APIMaxBodyBytes, api)
	mux.Handle("/api/", RateLimitMiddleware(deps.APILimiter, deps.TrustForwardedFor, limited))

	handler := AccessLogMiddleware(deps.Logger, deps.TrustForwardedFor, RecoverMiddleware(deps.Logger, mux))

	srv := &http.Server{
		Addr:              net.JoinHostPort(listenAddress, strconv.Itoa(port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No write timeout: streamed downloads last as long as the transfer.
	}

	return &Server{
		httpServer: srv,
		handler:    handler,
	}
}

// Serve accepts connections on ln. It blocks until the server stops.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
