package netutil

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ExtractDomain returns the registrable domain (eTLD+1) of a target that
// may be a URL, host:port, an IP literal or a bare host. The result is
// lowercased so request-log aggregates group case variants together.
//
// Examples:
//
//	"https://www.YouTube.com/watch?v=x" -> "youtube.com"
//	"m.vimeo.com:443"                   -> "vimeo.com"
//	"https://[2001:db8::1]/clip"        -> "2001:db8::1"
//	"localhost"                         -> "localhost"
func ExtractDomain(target string) string {
	host := HostOf(target)
	if host == "" {
		return ""
	}
	if domain, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return domain
	}
	// IP literals, single-label hosts and bare suffixes.
	return host
}

// HostOf returns the lowercased hostname of target without port, brackets
// or trailing dot.
func HostOf(target string) string {
	target = strings.TrimSpace(target)
	if strings.Contains(target, "://") || strings.HasPrefix(target, "//") {
		if u, err := url.Parse(target); err == nil && u.Host != "" {
			target = u.Host
		}
	}

	host := target
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	} else if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}
	return strings.TrimSuffix(strings.ToLower(host), ".")
}
