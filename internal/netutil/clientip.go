package netutil

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the caller address used for rate limiting and geo lookup.
// X-Forwarded-For (first hop) and X-Real-IP are honoured only when
// trustForwarded is set, i.e. when a reverse proxy is known to overwrite them.
func ClientIP(r *http.Request, trustForwarded bool) netip.Addr {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
				return addr.Unmap()
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			if addr, err := netip.ParseAddr(xri); err == nil {
				return addr.Unmap()
			}
		}
	}

	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}

// ClientKey is ClientIP rendered as a limiter key; unparseable peers share
// the "unknown" bucket.
func ClientKey(r *http.Request, trustForwarded bool) string {
	addr := ClientIP(r, trustForwarded)
	if !addr.IsValid() {
		return "unknown"
	}
	return addr.String()
}
