package service

import (
	"net/netip"
	"strings"
	"time"
)

// GeoIPStatus reports the installed country database. Empty fields mean no
// database yet or no schedule.
type GeoIPStatus struct {
	DBMtime             string `json:"db_mtime"`
	NextScheduledUpdate string `json:"next_scheduled_update"`
}

func (s *AdminService) GetGeoIPStatus() GeoIPStatus {
	return GeoIPStatus{
		DBMtime:             rfc3339OrEmpty(s.GeoIP.LastUpdated()),
		NextScheduledUpdate: rfc3339OrEmpty(s.GeoIP.NextScheduledUpdate()),
	}
}

func rfc3339OrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// LookupIP resolves one address the way request logging does, so an
// IPv4-mapped IPv6 address yields the IPv4 country.
func (s *AdminService) LookupIP(raw string) (string, error) {
	ip, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return "", invalidArg("ip: invalid IP address")
	}
	return s.GeoIP.Lookup(ip.Unmap()), nil
}

// UpdateGeoIPNow refreshes the database synchronously.
func (s *AdminService) UpdateGeoIPNow() error {
	if err := s.GeoIP.UpdateNow(); err != nil {
		return internal("geoip update failed", err)
	}
	return nil
}
