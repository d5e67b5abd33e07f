package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/juniorsir/stream-dl/internal/api"
	"github.com/juniorsir/stream-dl/internal/buildinfo"
	"github.com/juniorsir/stream-dl/internal/config"
	"github.com/juniorsir/stream-dl/internal/download"
	"github.com/juniorsir/stream-dl/internal/entitlement"
	"github.com/juniorsir/stream-dl/internal/extract"
	"github.com/juniorsir/stream-dl/internal/gate"
	"github.com/juniorsir/stream-dl/internal/geoip"
	"github.com/juniorsir/stream-dl/internal/log"
	"github.com/juniorsir/stream-dl/internal/metadata"
	"github.com/juniorsir/stream-dl/internal/netutil"
	"github.com/juniorsir/stream-dl/internal/requestlog"
	"github.com/juniorsir/stream-dl/internal/service"
	"github.com/juniorsir/stream-dl/internal/state"
)

const (
	apiRateLimitMessage   = "Too many requests from this IP, please try again after 15 minutes"
	loginRateLimitMessage = "Too many login attempts from this IP, please try again after 15 minutes"

	geoIPFetchTimeout  = 5 * time.Minute
	geoIPFetchAttempts = 3
	geoIPFetchBackoff  = 2 * time.Second
)

type streamdlApp struct {
	envCfg     *config.EnvConfig
	runtimeCfg *atomic.Pointer[config.RuntimeConfig]
	logger     zerolog.Logger

	resolver       *metadata.Resolver
	geoSvc         *geoip.Service
	requestlogRepo *requestlog.Repo
	requestlogSvc  *requestlog.Service
	pruner         *requestlog.Pruner
	apiLimiter     *gate.RateLimiter
	loginLimiter   *gate.RateLimiter

	apiSrv   *api.Server
	listener net.Listener
}

func run() error {
	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		return err
	}
	log.Configure(log.Config{Level: envCfg.LogLevel, Format: envCfg.LogFormat})
	logger := log.WithComponent("main")
	for _, name := range envCfg.WeakSecrets() {
		logger.Warn().Str("variable", name).Msg("configured secret is weak")
	}

	db, repo, err := state.PersistenceBootstrap(envCfg.DatabaseURL, config.DefaultSettings(), envCfg.SeedBlockedDomains)
	if err != nil {
		return fmt.Errorf("persistence bootstrap: %w", err)
	}
	logger.Info().Str("dialect", string(db.Dialect)).Msg("persistence bootstrap complete")

	app, err := newStreamdlApp(envCfg, db, repo)
	if err != nil {
		_ = db.Close()
		return err
	}
	app.startBackgroundServices()

	serverErrCh := app.startServers()
	runtimeErr := waitForShutdown(logger, serverErrCh)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app.shutdown(ctx)

	if err := db.Close(); err != nil {
		logger.Error().Err(err).Msg("persistence close error")
	}
	if runtimeErr != nil {
		return fmt.Errorf("runtime server error: %w", runtimeErr)
	}
	return nil
}

func userAgent() string {
	return "stream-dl/" + buildinfo.Version
}

func newStreamdlApp(envCfg *config.EnvConfig, db *state.DB, repo *state.StateRepo) (*streamdlApp, error) {
	app := &streamdlApp{
		envCfg:     envCfg,
		runtimeCfg: &atomic.Pointer[config.RuntimeConfig]{},
		logger:     log.WithComponent("main"),
	}

	// Extraction pipeline.
	ext := extract.New(extract.Config{
		Runner:      &extract.ExecRunner{Binary: envCfg.YtDlpPath, KillGrace: envCfg.StreamKillGrace},
		FFmpegPath:  envCfg.FFmpegPath,
		CookiesFile: envCfg.CookiesFile,
		Timeout:     envCfg.ExtractTimeout,
	})
	resolver, err := metadata.New(metadata.Config{
		Extractor:  ext,
		SuccessTTL: envCfg.CacheSuccessTTL,
		FailureTTL: envCfg.CacheFailureTTL,
		MaxEntries: envCfg.CacheMaxEntries,
	})
	if err != nil {
		return nil, err
	}
	app.resolver = resolver

	ent, err := entitlement.New(envCfg.Tiers)
	if err != nil {
		resolver.Close()
		return nil, err
	}

	// Admission.
	blockList := gate.NewBlockList(nil)
	guard := gate.NewNetworkGuard(nil)
	app.apiLimiter = gate.NewRateLimiter("api", envCfg.APIRateLimit, envCfg.APIRateWindow, apiRateLimitMessage, nil)
	app.loginLimiter = gate.NewRateLimiter("login", envCfg.LoginRateLimit, envCfg.LoginRateWindow, loginRateLimitMessage, nil)

	// Outbound fetchers. Every image redirect hop goes through the guard.
	images := netutil.NewDirectDownloader(
		func() time.Duration { return envCfg.ImageProxyTimeout },
		userAgent,
	)
	images.MaxBytes = int64(envCfg.ImageProxyMaxBytes)
	images.Client.CheckRedirect = guard.CheckRedirect

	geoFetcher := &netutil.RetryDownloader{
		Inner:    netutil.NewDirectDownloader(func() time.Duration { return geoIPFetchTimeout }, userAgent),
		Attempts: geoIPFetchAttempts,
		Backoff:  geoIPFetchBackoff,
	}
	app.geoSvc = geoip.NewService(geoip.ServiceConfig{
		CacheDir:       envCfg.CacheDir,
		DBURL:          envCfg.GeoIPDBURL,
		SHA256URL:      envCfg.GeoIPSHA256URL,
		UpdateSchedule: envCfg.GeoIPUpdateSchedule,
		OpenDB:         geoip.MaxMindOpen,
		Downloader:     geoFetcher,
	})

	// Request log.
	app.requestlogRepo = requestlog.NewRepo(db)
	app.requestlogSvc = requestlog.NewService(requestlog.ServiceConfig{
		Writer:        app.requestlogRepo,
		Geo:           app.geoSvc,
		QueueSize:     envCfg.RequestLogQueueSize,
		FlushBatch:    envCfg.RequestLogQueueFlushBatchSize,
		FlushInterval: envCfg.RequestLogQueueFlushInterval,
	})
	app.pruner, err = requestlog.NewPruner(app.requestlogRepo, envCfg.RequestLogRetention, envCfg.RequestLogPruneSchedule)
	if err != nil {
		resolver.Close()
		return nil, err
	}

	adminSecret := gate.NewSecretChecker(envCfg.AdminToken)
	media := &service.MediaService{
		BlockList:   blockList,
		Guard:       guard,
		Resolver:    resolver,
		Extractor:   ext,
		Entitlement: ent,
		Downloads:   download.NewDispatcher(ext),
		Images:      images,
		RequestLog:  app.requestlogSvc,
		RuntimeCfg:  app.runtimeCfg,
		Logger:      log.WithComponent("media"),
	}
	admin := &service.AdminService{
		Repo:        repo,
		RequestLogs: app.requestlogRepo,
		Cache:       resolver,
		BlockList:   blockList,
		RuntimeCfg:  app.runtimeCfg,
		GeoIP:       app.geoSvc,
		AdminSecret: adminSecret,
		Logger:      log.WithComponent("admin"),
	}
	admin.ReloadSettings()
	admin.ReloadBlockList()
	app.logger.Info().
		Bool("redirect_mode", admin.GetSettings().RedirectModeEnabled).
		Int("blocked_domains", blockList.Len()).
		Msg("settings and block list loaded")

	systemSvc := service.NewMemorySystemService(
		service.SystemInfo{
			Version:   buildinfo.Version,
			GitCommit: buildinfo.GitCommit,
			BuildTime: buildinfo.BuildTime,
			StartedAt: time.Now().UTC(),
		},
		app.runtimeCfg,
	)

	app.apiSrv = api.NewServerWithAddress(envCfg.ListenAddress, envCfg.Port, api.Deps{
		Media:             media,
		Admin:             admin,
		System:            systemSvc,
		Tickets:           gate.NewTicketIssuer(envCfg.TicketSecret, envCfg.TicketIssuer, envCfg.TicketTTL, envCfg.TicketLeeway, nil),
		Origin:            gate.NewOriginChecker(envCfg.AppURL, envCfg.IsProduction()),
		AdminSecret:       adminSecret,
		ResellerSecret:    gate.NewSecretChecker(envCfg.ResellerSecret),
		APILimiter:        app.apiLimiter,
		LoginLimiter:      app.loginLimiter,
		TrustForwardedFor: envCfg.TrustForwardedFor,
		APIMaxBodyBytes:   int64(envCfg.APIMaxBodyBytes),
		Logger:            log.WithComponent("http"),
	})

	ln, err := net.Listen("tcp", formatListenAddress(envCfg.ListenAddress, envCfg.Port))
	if err != nil {
		resolver.Close()
		return nil, fmt.Errorf("api server listen: %w", err)
	}
	app.listener = ln
	return app, nil
}

func (a *streamdlApp) startBackgroundServices() {
	if err := a.geoSvc.Start(); err != nil {
		a.logger.Warn().Err(err).Msg("geoip service start failed, lookups disabled")
	}
	a.requestlogSvc.Start()
	a.pruner.Start()
	a.apiLimiter.Start()
	a.loginLimiter.Start()
	a.logger.Info().Msg("background services started")
}

func (a *streamdlApp) startServers() <-chan error {
	serverErrCh := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", "http://"+a.listener.Addr().String()).Msg("api server starting")
		err := a.apiSrv.Serve(a.listener)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return
		}
		select {
		case serverErrCh <- fmt.Errorf("api server: %w", err):
		default:
		}
	}()
	return serverErrCh
}

func waitForShutdown(logger zerolog.Logger, serverErrCh <-chan error) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		return nil
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("server runtime error, shutting down")
		return err
	}
}

func formatListenAddress(listenAddress string, port int) string {
	return net.JoinHostPort(listenAddress, strconv.Itoa(port))
}

// shutdown stops the listener first so no request outlives the sinks it
// writes to, then the producers, then the request log (final flush).
func (a *streamdlApp) shutdown(ctx context.Context) {
	if err := a.apiSrv.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("api server shutdown error")
	}
	a.apiLimiter.Stop()
	a.loginLimiter.Stop()
	a.pruner.Stop()
	a.geoSvc.Stop()
	a.requestlogSvc.Stop()
	a.resolver.Close()
	a.logger.Info().Msg("server stopped")
}
