package gate

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"

	"github.com/juniorsir/stream-dl/internal/metrics"
)

const (
	invalidURLMessage = "Invalid or unresolvable URL provided."
	localhostMessage  = "Access to localhost is forbidden."
	privateMessage    = "URL resolves to a private or reserved IP address."
)

var reservedPrefixes = mustPrefixes(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.0.0.0/24",
	"192.0.2.0/24",
	"192.88.99.0/24",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"255.255.255.255/32",
	"::/128",
	"::1/128",
	"64:ff9b::/96",
	"64:ff9b:1::/48",
	"fc00::/7",
	"fe80::/10",
	"ff00::/8",
)

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		out = append(out, netip.MustParsePrefix(c))
	}
	return out
}

// IsReserved reports whether addr falls in a private, loopback, link-local,
// unspecified, multicast or otherwise reserved range. IPv4-mapped IPv6
// addresses are unmapped first. NAT64 prefixes are rejected whole since they
// embed arbitrary IPv4 targets.
func IsReserved(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() ||
		addr.IsUnspecified() ||
		addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsMulticast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() {
		return true
	}
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Resolver looks up the addresses of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// NetworkGuard rejects URLs that point at the service's own network.
type NetworkGuard struct {
	resolver Resolver
}

// NewNetworkGuard returns a guard using resolver, or net.DefaultResolver
// when nil.
func NewNetworkGuard(resolver Resolver) *NetworkGuard {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &NetworkGuard{resolver: resolver}
}

// Check validates rawURL: it must be an absolute http(s) URL whose host is
// not localhost and none of whose resolved addresses is reserved.
func (g *NetworkGuard) Check(ctx context.Context, rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return badRequest(invalidURLMessage, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return badRequest(invalidURLMessage, nil)
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return badRequest(invalidURLMessage, nil)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		metrics.IncGateRejection("guard")
		return forbidden(localhostMessage)
	}

	var addrs []netip.Addr
	if addr, err := netip.ParseAddr(host); err == nil {
		addrs = []netip.Addr{addr}
	} else {
		addrs, err = g.resolver.LookupNetIP(ctx, "ip", host)
		if err != nil {
			return badRequest(invalidURLMessage, err)
		}
		if len(addrs) == 0 {
			return badRequest(invalidURLMessage, nil)
		}
	}

	for _, addr := range addrs {
		if IsReserved(addr) {
			metrics.IncGateRejection("guard")
			return forbidden(privateMessage)
		}
	}
	return nil
}

const maxRedirects = 5

// CheckRedirect is an http.Client redirect policy that re-runs the guard on
// every hop, so an allowed host cannot bounce a fetch into a reserved range.
func (g *NetworkGuard) CheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return g.Check(req.Context(), req.URL.String())
}
