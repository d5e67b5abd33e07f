package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/juniorsir/stream-dl/internal/gate"
	"github.com/juniorsir/stream-dl/internal/metrics"
	"github.com/juniorsir/stream-dl/internal/netutil"
)

// AdminMiddleware requires "Authorization: Bearer <admin secret>".
func AdminMiddleware(secret *gate.SecretChecker, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := secret.CheckAdmin(r); err != nil {
			writeGateError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TicketMiddleware requires a valid session ticket as a Bearer token.
func TicketMiddleware(tickets *gate.TicketIssuer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, _ := gate.BearerToken(r)
		if err := tickets.Verify(token); err != nil {
			writeGateError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ResellerMiddleware requires the marketplace proxy secret header.
func ResellerMiddleware(secret *gate.SecretChecker, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := secret.CheckReseller(r); err != nil {
			writeGateError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// OriginMiddleware rejects callers outside the configured front end.
func OriginMiddleware(origin *gate.OriginChecker, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := origin.Check(r); err != nil {
			writeGateError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimitMiddleware counts every request against the caller's IP.
func RateLimitMiddleware(limiter *gate.RateLimiter, trustForwarded bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := limiter.Allow(netutil.ClientKey(r, trustForwarded)); err != nil {
			writeGateError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestBodyLimitMiddleware enforces a max request body size for downstream handlers.
func RequestBodyLimitMiddleware(maxBytes int64, next http.Handler) http.Handler {
	if maxBytes <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r != nil && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status and size written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(p)
	s.bytes += int64(n)
	return n, err
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (s *statusRecorder) committed() bool { return s.status != 0 }

func routeLabel(r *http.Request) string {
	if r.Pattern == "" {
		return "unmatched"
	}
	return r.Pattern
}

// RecoverMiddleware turns a handler panic into a generic INTERNAL response
// when nothing has been written yet. The panic value is only logged.
func RecoverMiddleware(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(v)
			}
			logger.Error().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("panic", fmt.Sprint(v)).
				Msg("handler panic")
			if !rec.committed() {
				WriteError(rec, http.StatusInternalServerError, "INTERNAL", msgInternal)
			}
		}()
		next.ServeHTTP(rec, r)
	})
}

// AccessLogMiddleware logs one line per request and records HTTP metrics.
func AccessLogMiddleware(logger zerolog.Logger, trustForwarded bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(started)
		route := routeLabel(r)
		metrics.ObserveHTTP(r.Method, route, status, elapsed)

		ev := logger.Info()
		if status >= http.StatusInternalServerError {
			ev = logger.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", route).
			Int("status", status).
			Int64("bytes", rec.bytes).
			Dur("duration", elapsed).
			Str("client_ip", netutil.ClientKey(r, trustForwarded)).
			Msg("http request")
	})
}
