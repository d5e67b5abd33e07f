package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/juniorsir/stream-dl/internal/config"
	"github.com/juniorsir/stream-dl/internal/download"
	"github.com/juniorsir/stream-dl/internal/entitlement"
	"github.com/juniorsir/stream-dl/internal/extract"
	"github.com/juniorsir/stream-dl/internal/gate"
	"github.com/juniorsir/stream-dl/internal/metadata"
	"github.com/juniorsir/stream-dl/internal/netutil"
	"github.com/juniorsir/stream-dl/internal/requestlog"
	"github.com/juniorsir/stream-dl/internal/service"
	"github.com/juniorsir/stream-dl/internal/state"
)

const (
	testAdminToken     = "test-admin-token-with-some-length"
	testResellerSecret = "test-reseller-secret"

	longVideoDoc = `{"title":"Long talk","duration":700,"thumbnail":"https://img.example/t.jpg","formats":[
 {"format_id":"18","ext":"mp4","height":360,"vcodec":"avc1","acodec":"mp4a","filesize":47919923},
 {"format_id":"248","ext":"webm","height":1080,"vcodec":"vp9","acodec":"none"}]}`
)

// scriptedRunner answers metadata and get-url invocations from fields and
// streams a fixed payload.
type scriptedRunner struct {
	mu        sync.Mutex
	metadata  *extract.Result
	directURL string
	stream    string
	calls     map[string]int
}

func (r *scriptedRunner) op(args []string) string {
	switch {
	case slices.Contains(args, "-J"):
		return "metadata"
	case slices.Contains(args, "--get-url"):
		return "get_url"
	default:
		return "stream"
	}
}

func (r *scriptedRunner) Run(_ context.Context, args []string) (*extract.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op := r.op(args)
	r.calls[op]++
	if op == "get_url" {
		return &extract.Result{Stdout: []byte(r.directURL + "\n")}, nil
	}
	return r.metadata, nil
}

func (r *scriptedRunner) Start(_ context.Context, args []string, _ io.Writer) (extract.Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[r.op(args)]++
	return &staticProcess{stdout: strings.NewReader(r.stream)}, nil
}

func (r *scriptedRunner) Calls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

type staticProcess struct {
	stdout io.Reader
}

func (p *staticProcess) Stdout() io.Reader { return p.stdout }
func (p *staticProcess) Wait() error       { return nil }

type staticDNS map[string]string

func (s staticDNS) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	addr, ok := s[host]
	if !ok {
		return nil, fmt.Errorf("lookup %s: no such host", host)
	}
	return []netip.Addr{netip.MustParseAddr(addr)}, nil
}

type stubImages struct {
	contentType string
	err         error
}

func (s *stubImages) Open(context.Context, string, http.Header) (*netutil.Stream, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &netutil.Stream{
		Body:          io.NopCloser(strings.NewReader("PNGDATA")),
		ContentType:   s.contentType,
		ContentLength: 7,
	}, nil
}

type stubGeo struct{}

func (stubGeo) Lookup(netip.Addr) string       { return "NL" }
func (stubGeo) LastUpdated() time.Time         { return time.Time{} }
func (stubGeo) NextScheduledUpdate() time.Time { return time.Time{} }
func (stubGeo) UpdateNow() error               { return errors.New("offline") }

type recordSink struct {
	mu      sync.Mutex
	records []requestlog.Record
}

func (s *recordSink) Log(rec requestlog.Record) {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
}

func (s *recordSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type testEnv struct {
	server  *Server
	runner  *scriptedRunner
	images  *stubImages
	records *recordSink
	tickets *gate.TicketIssuer
}

type testOptions struct {
	apiLimit   int
	loginLimit int
	maxBody    int64
}

func newTestEnv(t *testing.T, opts testOptions) *testEnv {
	t.Helper()
	if opts.apiLimit == 0 {
		opts.apiLimit = 1000
	}
	if opts.loginLimit == 0 {
		opts.loginLimit = 5
	}
	if opts.maxBody == 0 {
		opts.maxBody = 1 << 16
	}

	db, repo, err := state.PersistenceBootstrap(
		filepath.Join(t.TempDir(), "api.db"),
		config.DefaultSettings(),
		nil,
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	runner := &scriptedRunner{
		metadata:  &extract.Result{Stdout: []byte(longVideoDoc)},
		directURL: "https://cdn.example/v.mp4",
		stream:    "MEDIA-BYTES",
		calls:     map[string]int{},
	}
	ext := extract.New(extract.Config{Runner: runner})
	resolver, err := metadata.New(metadata.Config{Extractor: ext})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(resolver.Close)
	ent, err := entitlement.New(config.DefaultTiers())
	if err != nil {
		t.Fatal(err)
	}

	runtimeCfg := &atomic.Pointer[config.RuntimeConfig]{}
	blockList := gate.NewBlockList(nil)
	adminSecret := gate.NewSecretChecker(testAdminToken)
	images := &stubImages{contentType: "image/png"}
	records := &recordSink{}

	media := &service.MediaService{
		BlockList: blockList,
		Guard: gate.NewNetworkGuard(staticDNS{
			"video.example":    "93.184.216.34",
			"img.example":      "93.184.216.35",
			"intranet.example": "192.168.1.20",
		}),
		Resolver:    resolver,
		Extractor:   ext,
		Entitlement: ent,
		Downloads:   download.NewDispatcher(ext),
		Images:      images,
		RequestLog:  records,
		RuntimeCfg:  runtimeCfg,
		Logger:      zerolog.Nop(),
	}
	admin := &service.AdminService{
		Repo:        repo,
		RequestLogs: requestlog.NewRepo(db),
		Cache:       resolver,
		BlockList:   blockList,
		RuntimeCfg:  runtimeCfg,
		GeoIP:       stubGeo{},
		AdminSecret: adminSecret,
		Logger:      zerolog.Nop(),
	}
	admin.ReloadSettings()
	admin.ReloadBlockList()

	tickets := gate.NewTicketIssuer("ticket-secret-for-tests", "video-api", time.Minute, 30*time.Second, nil)
	system := service.NewMemorySystemService(service.SystemInfo{
		Version:   "1.0.0-test",
		GitCommit: "abc123",
	}, runtimeCfg)
	srv := NewServer(0, Deps{
		Media:           media,
		Admin:           admin,
		System:          system,
		Tickets:         tickets,
		Origin:          gate.NewOriginChecker("", false),
		AdminSecret:     adminSecret,
		ResellerSecret:  gate.NewSecretChecker(testResellerSecret),
		APILimiter:      gate.NewRateLimiter("api", opts.apiLimit, 15*time.Minute, "Too many requests, please try again later.", nil),
		LoginLimiter:    gate.NewRateLimiter("login", opts.loginLimit, 15*time.Minute, "Too many login attempts.", nil),
		APIMaxBodyBytes: opts.maxBody,
		Logger:          zerolog.Nop(),
	})

	return &testEnv{server: srv, runner: runner, images: images, records: records, tickets: tickets}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.50:41000"
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) ticketHeader(t *testing.T) map[string]string {
	t.Helper()
	rec := e.do(t, http.MethodGet, "/api/v1/ticket", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ticket status: got %d, body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		Ticket    string    `json:"ticket"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	decodeJSON(t, rec, &body)
	if body.Ticket == "" || body.ExpiresAt.IsZero() {
		t.Fatalf("ticket response incomplete: %+v", body)
	}
	return map[string]string{"Authorization": "Bearer " + body.Ticket}
}

func adminHeader() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testAdminToken}
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", rec.Body.String(), err)
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var body ErrorResponse
	decodeJSON(t, rec, &body)
	return body.Error
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	rec := env.do(t, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	assertBodyContains(t, rec, `"status":"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	env.do(t, http.MethodGet, "/healthz", nil, nil)

	rec := env.do(t, http.MethodGet, "/metrics", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	assertBodyContains(t, rec, "streamdl_http_requests_total")
}

func TestResolve_RequiresTicket(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	rec := env.do(t, http.MethodPost, "/api/v1/resolve", map[string]string{"url": "https://video.example/w"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want 401", rec.Code)
	}
	if env.runner.Calls("metadata") != 0 {
		t.Fatal("extractor ran without a ticket")
	}
}

func TestResolve_CachedWithinTTL(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	hdr := env.ticketHeader(t)

	var first, second map[string]any
	for i, out := range []*map[string]any{&first, &second} {
		rec := env.do(t, http.MethodPost, "/api/v1/resolve", map[string]string{"url": "https://video.example/w"}, hdr)
		if rec.Code != http.StatusOK {
			t.Fatalf("resolve %d: status %d, body=%s", i+1, rec.Code, rec.Body.String())
		}
		decodeJSON(t, rec, out)
	}

	if first["title"] != "Long talk" {
		t.Fatalf("title: got %v", first["title"])
	}
	if fmt.Sprint(first["formats"]) != fmt.Sprint(second["formats"]) {
		t.Fatalf("formats differ between cached and fresh responses")
	}
	if got := env.runner.Calls("metadata"); got != 1 {
		t.Fatalf("metadata runs: got %d, want 1", got)
	}
	if got := env.records.Len(); got != 2 {
		t.Fatalf("request records: got %d, want 2", got)
	}
}

func TestResolve_PrivateTargetForbidden(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	hdr := env.ticketHeader(t)

	for _, target := range []string{"http://127.0.0.1/admin", "http://intranet.example/x", "http://localhost:8080/"} {
		rec := env.do(t, http.MethodPost, "/api/v1/resolve", map[string]string{"url": target}, hdr)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s: status %d, want 403", target, rec.Code)
		}
	}
	if env.runner.Calls("metadata") != 0 {
		t.Fatal("extractor ran for a private target")
	}
	if env.records.Len() != 0 {
		t.Fatal("rejected requests were logged")
	}
}

func TestResolve_MissingURL(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	hdr := env.ticketHeader(t)

	rec := env.do(t, http.MethodPost, "/api/v1/resolve", map[string]string{"url": ""}, hdr)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rec.Code)
	}
	if got := decodeError(t, rec); got.Code != "INVALID_ARGUMENT" || got.Message != "URL required" {
		t.Fatalf("error: got %+v", got)
	}
}

func TestResolve_UnknownFieldRejected(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	hdr := env.ticketHeader(t)

	rec := env.do(t, http.MethodPost, "/api/v1/resolve", `{"url":"https://video.example/w","extra":1}`, hdr)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rec.Code)
	}
}

func TestResolve_UpstreamFailureCarriesReason(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	env.runner.metadata = &extract.Result{
		ExitCode: 1,
		Stderr:   []byte("ERROR: [youtube] abc: Private video. Sign in if you've been granted access\nprivate video"),
	}
	hdr := env.ticketHeader(t)

	rec := env.do(t, http.MethodPost, "/api/v1/resolve", map[string]string{"url": "https://video.example/p"}, hdr)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status: got %d, want 502", rec.Code)
	}
	got := decodeError(t, rec)
	if got.Code != "UPSTREAM_FAILURE" || got.Reason != "private" || got.Message != "This video is private." {
		t.Fatalf("error: got %+v", got)
	}
}

func TestResolveURL(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	hdr := env.ticketHeader(t)

	rec := env.do(t, http.MethodPost, "/api/v1/resolve-url",
		map[string]string{"url": "https://video.example/w", "format_id": "18"}, hdr)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body=%s", rec.Code, rec.Body.String())
	}
	assertBodyContains(t, rec, `"direct_url":"https://cdn.example/v.mp4"`)

	rec = env.do(t, http.MethodPost, "/api/v1/resolve-url", map[string]string{"url": "https://video.example/w"}, hdr)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing format status: got %d", rec.Code)
	}
	if got := decodeError(t, rec); got.Message != "URL and format_id required" {
		t.Fatalf("message: got %q", got.Message)
	}
}

func TestDownload_StreamsByDefault(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	rec := env.do(t, http.MethodGet, "/api/v1/download?url=https%3A%2F%2Fvideo.example%2Fw&format_id=18&title=My+Clip!", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="My_Clip_.mp4"` {
		t.Fatalf("Content-Disposition: got %q", got)
	}
	if rec.Body.String() != "MEDIA-BYTES" {
		t.Fatalf("body: got %q", rec.Body.String())
	}
}

func TestDownload_RedirectModeFromSettings(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	rec := env.do(t, http.MethodPut, "/api/v1/admin/settings", map[string]any{"is_redirect_mode_enabled": true}, adminHeader())
	if rec.Code != http.StatusOK {
		t.Fatalf("settings status: got %d, body=%s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/v1/download?url=https%3A%2F%2Fvideo.example%2Fw&format_id=18", nil, nil)
	if rec.Code != http.StatusFound {
		t.Fatalf("status: got %d, want 302", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "https://cdn.example/v.mp4" {
		t.Fatalf("Location: got %q", got)
	}
	if env.runner.Calls("stream") != 0 {
		t.Fatal("stream started in redirect mode")
	}
}

func TestDownload_MissingFormat(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	rec := env.do(t, http.MethodGet, "/api/v1/download?url=https%3A%2F%2Fvideo.example%2Fw", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rec.Code)
	}
}

func TestImageProxy(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	rec := env.do(t, http.MethodGet, "/api/v1/image-proxy?url=https%3A%2F%2Fimg.example%2Ft.png", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("Content-Type: got %q", got)
	}
	if rec.Body.String() != "PNGDATA" {
		t.Fatalf("body: got %q", rec.Body.String())
	}

	env.images.contentType = "text/html"
	rec = env.do(t, http.MethodGet, "/api/v1/image-proxy?url=https%3A%2F%2Fimg.example%2Fpage", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("non-image status: got %d, want 404", rec.Code)
	}
	if got := decodeError(t, rec); got.Message != "Image not found" {
		t.Fatalf("message: got %q", got.Message)
	}
}

func TestResellerResolve(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	body := map[string]string{"url": "https://video.example/w"}

	rec := env.do(t, http.MethodPost, "/api/v1/reseller/resolve", body, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("missing secret status: got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/reseller/resolve", body, map[string]string{
		gate.ResellerSecretHeader: testResellerSecret,
		entitlement.PlanHeader:    "BASIC",
		ResellerUserHeader:        "acme",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("BASIC status: got %d, want 403", rec.Code)
	}
	if got := decodeError(t, rec); !strings.Contains(got.Message, "10 minutes") {
		t.Fatalf("message: got %q", got.Message)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/reseller/resolve", body, map[string]string{
		gate.ResellerSecretHeader: testResellerSecret,
		entitlement.PlanHeader:    "PRO",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("PRO status: got %d, body=%s", rec.Code, rec.Body.String())
	}
	assertBodyContains(t, rec, `"format_id":"248"`)

	rec = env.do(t, http.MethodPost, "/api/v1/reseller/resolve", map[string]string{}, map[string]string{
		gate.ResellerSecretHeader: testResellerSecret,
	})
	if got := decodeError(t, rec); got.Message != `A "url" parameter is required in the request body.` {
		t.Fatalf("missing url message: got %q", got.Message)
	}
}

func TestAdminLogin_RateLimited(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	for i := 1; i <= 5; i++ {
		rec := env.do(t, http.MethodPost, "/api/v1/admin/login", map[string]string{"password": "wrong"}, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status %d, want 401", i, rec.Code)
		}
	}
	rec := env.do(t, http.MethodPost, "/api/v1/admin/login", map[string]string{"password": testAdminToken}, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("6th attempt: status %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
}

func TestAdminLogin_Success(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	rec := env.do(t, http.MethodPost, "/api/v1/admin/login", map[string]string{"password": testAdminToken}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	assertBodyContains(t, rec, `"success":true`)
}

func TestAdminRoutes_RequireSecret(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	for _, path := range []string{"/api/v1/admin/stats", "/api/v1/admin/settings", "/api/v1/admin/request-logs"} {
		rec := env.do(t, http.MethodGet, path, nil, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status %d, want 401", path, rec.Code)
		}
	}
}

func TestAdminBlockedDomains_Lifecycle(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	hdr := env.ticketHeader(t)

	rec := env.do(t, http.MethodPost, "/api/v1/admin/blocked-domains", map[string]string{"domain": "video.example"}, adminHeader())
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status: got %d, body=%s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/v1/admin/blocked-domains", nil, adminHeader())
	var domains []string
	decodeJSON(t, rec, &domains)
	if len(domains) != 1 || domains[0] != "video.example" {
		t.Fatalf("domains: got %v", domains)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/resolve", map[string]string{"url": "https://video.example/w"}, hdr)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("blocked resolve status: got %d, want 403", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/admin/blocked-domains", map[string]string{"domain": "video.example"}, adminHeader())
	if rec.Code != http.StatusOK {
		t.Fatalf("remove status: got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/v1/resolve", map[string]string{"url": "https://video.example/w"}, hdr)
	if rec.Code != http.StatusOK {
		t.Fatalf("unblocked resolve status: got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/admin/blocked-domains", map[string]string{"domain": "  "}, adminHeader())
	if got := decodeError(t, rec); got.Message != "Domain is required." {
		t.Fatalf("empty domain message: got %q", got.Message)
	}
}

func TestAdminSettings_RejectsNonBoolean(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	for _, body := range []string{`{"is_redirect_mode_enabled":"yes"}`, `{"is_redirect_mode_enabled":null}`, `{}`} {
		rec := env.do(t, http.MethodPut, "/api/v1/admin/settings", body, adminHeader())
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d, want 400", body, rec.Code)
		}
		if got := decodeError(t, rec); got.Message != "Value must be a boolean." {
			t.Fatalf("%s: message %q", body, got.Message)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/v1/admin/settings", nil, adminHeader())
	assertBodyContains(t, rec, `"is_redirect_mode_enabled":false`)
}

func TestAdminStatsAndCacheClear(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	hdr := env.ticketHeader(t)
	env.do(t, http.MethodPost, "/api/v1/resolve", map[string]string{"url": "https://video.example/w"}, hdr)
	env.do(t, http.MethodPost, "/api/v1/resolve", map[string]string{"url": "https://video.example/w"}, hdr)

	rec := env.do(t, http.MethodGet, "/api/v1/admin/stats", nil, adminHeader())
	var stats service.AdminStats
	decodeJSON(t, rec, &stats)
	if stats.CacheHits != 1 || stats.CacheMisses != 1 || stats.RedirectMode {
		t.Fatalf("stats: got %+v", stats)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/admin/cache/clear", nil, adminHeader())
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status: got %d", rec.Code)
	}
	env.do(t, http.MethodPost, "/api/v1/resolve", map[string]string{"url": "https://video.example/w"}, hdr)
	if got := env.runner.Calls("metadata"); got != 2 {
		t.Fatalf("metadata runs after clear: got %d, want 2", got)
	}
}

func TestAdminAnalyticsAndLogs_EmptyStore(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	rec := env.do(t, http.MethodGet, "/api/v1/admin/analytics", nil, adminHeader())
	if rec.Code != http.StatusOK {
		t.Fatalf("analytics status: got %d", rec.Code)
	}
	assertBodyContains(t, rec, `"daily_counts":[]`)
	assertBodyContains(t, rec, `"top_domains":[]`)

	rec = env.do(t, http.MethodGet, "/api/v1/admin/request-logs?limit=abc", nil, adminHeader())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status: got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/v1/admin/request-logs?limit=9999", nil, adminHeader())
	if rec.Code != http.StatusOK {
		t.Fatalf("clamped limit status: got %d", rec.Code)
	}
	assertBodyContains(t, rec, "[]")
}

func TestAdminGeoIP(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	rec := env.do(t, http.MethodGet, "/api/v1/admin/geoip/lookup?ip=198.51.100.1", nil, adminHeader())
	if rec.Code != http.StatusOK {
		t.Fatalf("lookup status: got %d", rec.Code)
	}
	assertBodyContains(t, rec, `"country_code":"NL"`)

	rec = env.do(t, http.MethodGet, "/api/v1/admin/geoip/lookup?ip=not-an-ip", nil, adminHeader())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad ip status: got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/admin/geoip/actions/update-now", nil, adminHeader())
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("update status: got %d", rec.Code)
	}
}

func TestAdminSystemInfo(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	rec := env.do(t, http.MethodGet, "/api/v1/admin/system/info", nil, adminHeader())
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	assertBodyContains(t, rec, `"version":"1.0.0-test"`)
}

func TestAPIRateLimit(t *testing.T) {
	env := newTestEnv(t, testOptions{apiLimit: 2})

	for i := 0; i < 2; i++ {
		if rec := env.do(t, http.MethodGet, "/api/v1/ticket", nil, nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, rec.Code)
		}
	}
	rec := env.do(t, http.MethodGet, "/api/v1/ticket", nil, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status: got %d, want 429", rec.Code)
	}

	// Health checks are outside the API limiter.
	if rec := env.do(t, http.MethodGet, "/healthz", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz status: got %d", rec.Code)
	}
}

func TestBodyLimit(t *testing.T) {
	env := newTestEnv(t, testOptions{maxBody: 32})
	hdr := env.ticketHeader(t)

	body := map[string]string{"url": "https://video.example/" + strings.Repeat("a", 64)}
	rec := env.do(t, http.MethodPost, "/api/v1/resolve", body, hdr)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status: got %d, want 413", rec.Code)
	}
	assertBodyContains(t, rec, "PAYLOAD_TOO_LARGE")
}
