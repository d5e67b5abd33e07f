// Package config handles environment-based configuration loading and runtime config models.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// EnvConfig holds all environment-variable-driven settings (not hot-updatable).
type EnvConfig struct {
	// Directories
	StateDir string
	CacheDir string

	// Network
	ListenAddress     string
	Port              int
	APIMaxBodyBytes   int
	TrustForwardedFor bool

	// Mode
	Env string

	// Logging
	LogLevel  string
	LogFormat string

	// Database: a SQLite file path or a postgres:// DSN.
	DatabaseURL string

	// Domains inserted into the block list at startup if absent.
	SeedBlockedDomains []string

	// Auth
	AdminToken     string
	TicketSecret   string
	TicketIssuer   string
	TicketTTL      time.Duration
	TicketLeeway   time.Duration
	AppURL         string
	ResellerSecret string

	// Rate limits
	APIRateLimit    int
	APIRateWindow   time.Duration
	LoginRateLimit  int
	LoginRateWindow time.Duration

	// Extractor
	YtDlpPath       string
	FFmpegPath      string
	CookiesFile     string
	ExtractTimeout  time.Duration
	StreamKillGrace time.Duration

	// Metadata cache
	CacheSuccessTTL time.Duration
	CacheFailureTTL time.Duration
	CacheMaxEntries int

	// Tiers
	TiersFile string
	Tiers     []TierConfig

	// Request log
	RequestLogQueueSize           int
	RequestLogQueueFlushBatchSize int
	RequestLogQueueFlushInterval  time.Duration
	RequestLogRetention           time.Duration
	RequestLogPruneSchedule       string

	// GeoIP
	GeoIPDBURL          string
	GeoIPSHA256URL      string
	GeoIPUpdateSchedule string

	// Image proxy
	ImageProxyTimeout  time.Duration
	ImageProxyMaxBytes int
}

// IsProduction reports whether the hardened deployment mode is active.
func (c *EnvConfig) IsProduction() bool {
	return c.Env == EnvProduction
}

// LoadEnvConfig reads environment variables and returns a validated EnvConfig.
// Returns an error if any required variable is missing or any value is invalid.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	// --- Directories ---
	cfg.StateDir = envStr("STREAMDL_STATE_DIR", "/var/lib/stream-dl")
	cfg.CacheDir = envStr("STREAMDL_CACHE_DIR", "/var/cache/stream-dl")

	// --- Network ---
	cfg.ListenAddress = strings.TrimSpace(envStr("STREAMDL_LISTEN_ADDRESS", "0.0.0.0"))
	cfg.Port = envInt("STREAMDL_PORT", 3000, &errs)
	cfg.APIMaxBodyBytes = envInt("STREAMDL_API_MAX_BODY_BYTES", 64<<10, &errs)
	cfg.TrustForwardedFor = envBool("STREAMDL_TRUST_FORWARDED_FOR", false, &errs)

	// --- Mode ---
	cfg.Env = strings.ToLower(strings.TrimSpace(envStr("STREAMDL_ENV", EnvDevelopment)))
	cfg.LogLevel = envStr("STREAMDL_LOG_LEVEL", "info")
	cfg.LogFormat = envStr("STREAMDL_LOG_FORMAT", "json")

	// --- Database ---
	cfg.DatabaseURL = strings.TrimSpace(envStr("STREAMDL_DATABASE_URL", filepath.Join(cfg.StateDir, "stream-dl.db")))
	cfg.SeedBlockedDomains = envStringSlice("STREAMDL_SEED_BLOCKED_DOMAINS", []string{}, &errs)

	// --- Auth (admin token must be defined; empty disables the admin surface) ---
	adminToken, hasAdminToken := os.LookupEnv("STREAMDL_ADMIN_TOKEN")
	cfg.AdminToken = adminToken
	cfg.TicketSecret = os.Getenv("STREAMDL_TICKET_SECRET")
	cfg.TicketIssuer = envStr("STREAMDL_TICKET_ISSUER", "video-api")
	cfg.TicketTTL = envDuration("STREAMDL_TICKET_TTL", 15*time.Minute, &errs)
	cfg.TicketLeeway = envDuration("STREAMDL_TICKET_LEEWAY", 30*time.Second, &errs)
	cfg.AppURL = strings.TrimSpace(os.Getenv("STREAMDL_APP_URL"))
	cfg.ResellerSecret = os.Getenv("STREAMDL_RESELLER_SECRET")

	// --- Rate limits ---
	cfg.APIRateLimit = envInt("STREAMDL_API_RATE_LIMIT", 200, &errs)
	cfg.APIRateWindow = envDuration("STREAMDL_API_RATE_WINDOW", 15*time.Minute, &errs)
	cfg.LoginRateLimit = envInt("STREAMDL_LOGIN_RATE_LIMIT", 5, &errs)
	cfg.LoginRateWindow = envDuration("STREAMDL_LOGIN_RATE_WINDOW", 15*time.Minute, &errs)

	// --- Extractor ---
	// An empty ffmpeg path leaves discovery to yt-dlp (PATH lookup).
	defaultYtDlp, defaultFFmpeg := "yt-dlp", ""
	if cfg.IsProduction() {
		defaultYtDlp = filepath.Join("bin", "yt-dlp")
		defaultFFmpeg = filepath.Join("bin", "ffmpeg")
	}
	cfg.YtDlpPath = envStr("STREAMDL_YTDLP_PATH", defaultYtDlp)
	cfg.FFmpegPath = envStr("STREAMDL_FFMPEG_PATH", defaultFFmpeg)
	cfg.CookiesFile = envStr("STREAMDL_COOKIES_FILE", "cookies.txt")
	cfg.ExtractTimeout = envDuration("STREAMDL_EXTRACT_TIMEOUT", 45*time.Second, &errs)
	cfg.StreamKillGrace = envDuration("STREAMDL_STREAM_KILL_GRACE", 3*time.Second, &errs)

	// --- Metadata cache ---
	cfg.CacheSuccessTTL = envDuration("STREAMDL_CACHE_SUCCESS_TTL", time.Hour, &errs)
	cfg.CacheFailureTTL = envDuration("STREAMDL_CACHE_FAILURE_TTL", 5*time.Minute, &errs)
	cfg.CacheMaxEntries = envInt("STREAMDL_CACHE_MAX_ENTRIES", 10000, &errs)

	// --- Tiers ---
	cfg.TiersFile = strings.TrimSpace(os.Getenv("STREAMDL_TIERS_FILE"))

	// --- Request log ---
	cfg.RequestLogQueueSize = envInt("STREAMDL_REQUEST_LOG_QUEUE_SIZE", 4096, &errs)
	cfg.RequestLogQueueFlushBatchSize = envInt("STREAMDL_REQUEST_LOG_QUEUE_FLUSH_BATCH_SIZE", 256, &errs)
	cfg.RequestLogQueueFlushInterval = envDuration("STREAMDL_REQUEST_LOG_QUEUE_FLUSH_INTERVAL", 5*time.Second, &errs)
	cfg.RequestLogRetention = envDuration("STREAMDL_REQUEST_LOG_RETENTION", 90*24*time.Hour, &errs)
	cfg.RequestLogPruneSchedule = envStr("STREAMDL_REQUEST_LOG_PRUNE_SCHEDULE", "30 3 * * *")

	// --- GeoIP ---
	cfg.GeoIPDBURL = strings.TrimSpace(envStr(
		"STREAMDL_GEOIP_DB_URL",
		"https://github.com/P3TERX/GeoLite.mmdb/raw/download/GeoLite2-Country.mmdb",
	))
	cfg.GeoIPSHA256URL = strings.TrimSpace(os.Getenv("STREAMDL_GEOIP_SHA256_URL"))
	cfg.GeoIPUpdateSchedule = envStr("STREAMDL_GEOIP_UPDATE_SCHEDULE", "0 7 * * 3")

	// --- Image proxy ---
	cfg.ImageProxyTimeout = envDuration("STREAMDL_IMAGE_PROXY_TIMEOUT", 15*time.Second, &errs)
	cfg.ImageProxyMaxBytes = envInt("STREAMDL_IMAGE_PROXY_MAX_BYTES", 10<<20, &errs)

	// --- Validation ---
	if cfg.Env != EnvProduction && cfg.Env != EnvDevelopment {
		errs = append(errs, fmt.Sprintf("STREAMDL_ENV: invalid value %q (allowed: %s, %s)", cfg.Env, EnvProduction, EnvDevelopment))
	}
	if cfg.ListenAddress == "" {
		errs = append(errs, "STREAMDL_LISTEN_ADDRESS must not be empty")
	}
	validatePort("STREAMDL_PORT", cfg.Port, &errs)
	validatePositive("STREAMDL_API_MAX_BODY_BYTES", cfg.APIMaxBodyBytes, &errs)

	if cfg.DatabaseURL == "" {
		errs = append(errs, "STREAMDL_DATABASE_URL must not be empty")
	}

	for _, d := range cfg.SeedBlockedDomains {
		if strings.TrimSpace(d) == "" {
			errs = append(errs, "STREAMDL_SEED_BLOCKED_DOMAINS: entries must not be empty")
			break
		}
	}

	if !hasAdminToken {
		errs = append(errs, "STREAMDL_ADMIN_TOKEN must be defined (can be empty)")
	}
	if cfg.TicketSecret == "" {
		errs = append(errs, "STREAMDL_TICKET_SECRET must not be empty")
	}
	if strings.TrimSpace(cfg.TicketIssuer) == "" {
		errs = append(errs, "STREAMDL_TICKET_ISSUER must not be empty")
	}
	if cfg.TicketTTL <= 0 {
		errs = append(errs, "STREAMDL_TICKET_TTL must be positive")
	}
	if cfg.TicketLeeway < 0 {
		errs = append(errs, "STREAMDL_TICKET_LEEWAY must not be negative")
	}
	if cfg.IsProduction() && cfg.AppURL == "" {
		errs = append(errs, "STREAMDL_APP_URL is required when STREAMDL_ENV is production")
	}
	if cfg.AppURL != "" {
		if u, err := url.Parse(cfg.AppURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("STREAMDL_APP_URL: invalid origin %q", cfg.AppURL))
		}
	}

	validatePositive("STREAMDL_API_RATE_LIMIT", cfg.APIRateLimit, &errs)
	validatePositive("STREAMDL_LOGIN_RATE_LIMIT", cfg.LoginRateLimit, &errs)
	if cfg.APIRateWindow <= 0 {
		errs = append(errs, "STREAMDL_API_RATE_WINDOW must be positive")
	}
	if cfg.LoginRateWindow <= 0 {
		errs = append(errs, "STREAMDL_LOGIN_RATE_WINDOW must be positive")
	}

	if strings.TrimSpace(cfg.YtDlpPath) == "" {
		errs = append(errs, "STREAMDL_YTDLP_PATH must not be empty")
	}
	if cfg.ExtractTimeout <= 0 {
		errs = append(errs, "STREAMDL_EXTRACT_TIMEOUT must be positive")
	}
	if cfg.StreamKillGrace <= 0 {
		errs = append(errs, "STREAMDL_STREAM_KILL_GRACE must be positive")
	}

	if cfg.CacheSuccessTTL <= 0 {
		errs = append(errs, "STREAMDL_CACHE_SUCCESS_TTL must be positive")
	}
	if cfg.CacheFailureTTL <= 0 {
		errs = append(errs, "STREAMDL_CACHE_FAILURE_TTL must be positive")
	}
	if cfg.CacheFailureTTL >= cfg.CacheSuccessTTL {
		errs = append(errs, "STREAMDL_CACHE_FAILURE_TTL must be shorter than STREAMDL_CACHE_SUCCESS_TTL")
	}
	validatePositive("STREAMDL_CACHE_MAX_ENTRIES", cfg.CacheMaxEntries, &errs)

	cfg.Tiers = DefaultTiers()
	if cfg.TiersFile != "" {
		tiers, err := LoadTiersFile(cfg.TiersFile)
		if err != nil {
			errs = append(errs, fmt.Sprintf("STREAMDL_TIERS_FILE: %v", err))
		} else {
			cfg.Tiers = tiers
		}
	}

	validatePositive("STREAMDL_REQUEST_LOG_QUEUE_SIZE", cfg.RequestLogQueueSize, &errs)
	validatePositive("STREAMDL_REQUEST_LOG_QUEUE_FLUSH_BATCH_SIZE", cfg.RequestLogQueueFlushBatchSize, &errs)
	if cfg.RequestLogQueueFlushInterval <= 0 {
		errs = append(errs, "STREAMDL_REQUEST_LOG_QUEUE_FLUSH_INTERVAL must be positive")
	}
	if cfg.RequestLogQueueSize < 2*cfg.RequestLogQueueFlushBatchSize {
		errs = append(errs, "STREAMDL_REQUEST_LOG_QUEUE_SIZE must be at least 2x STREAMDL_REQUEST_LOG_QUEUE_FLUSH_BATCH_SIZE")
	}
	if cfg.RequestLogRetention < 0 {
		errs = append(errs, "STREAMDL_REQUEST_LOG_RETENTION must not be negative")
	}
	if _, err := cron.ParseStandard(cfg.RequestLogPruneSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("STREAMDL_REQUEST_LOG_PRUNE_SCHEDULE: invalid cron expression %q: %v", cfg.RequestLogPruneSchedule, err))
	}

	if _, err := cron.ParseStandard(cfg.GeoIPUpdateSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("STREAMDL_GEOIP_UPDATE_SCHEDULE: invalid cron expression %q: %v", cfg.GeoIPUpdateSchedule, err))
	}

	if cfg.ImageProxyTimeout <= 0 {
		errs = append(errs, "STREAMDL_IMAGE_PROXY_TIMEOUT must be positive")
	}
	validatePositive("STREAMDL_IMAGE_PROXY_MAX_BYTES", cfg.ImageProxyMaxBytes, &errs)

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envBool(key string, defaultVal bool, errs *[]string) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid boolean %q", key, v))
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

// envStringSlice parses a JSON string array, e.g. STREAMDL_X='["a","b"]'.
func envStringSlice(key string, defaultVal []string, errs *[]string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid JSON string array %q", key, v))
		return defaultVal
	}
	if out == nil {
		return []string{}
	}
	return out
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}
