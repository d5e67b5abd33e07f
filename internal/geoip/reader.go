package geoip

import (
	"net/netip"
	"strings"

	"github.com/oschwald/maxminddb-golang"
)

// Reader resolves an address to an upper-case ISO country code, or "".
type Reader interface {
	Lookup(ip netip.Addr) string
	Close() error
}

// OpenFunc opens the database file at path.
type OpenFunc func(path string) (Reader, error)

type emptyReader struct{}

func (emptyReader) Lookup(netip.Addr) string { return "" }
func (emptyReader) Close() error             { return nil }

// NoOpOpen opens nothing; every lookup misses.
func NoOpOpen(string) (Reader, error) { return emptyReader{}, nil }

// countryRecord mirrors the country fields of GeoLite2-Country. Anycast and
// some hosting ranges only carry registered_country.
type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	RegisteredCountry struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"registered_country"`
}

type mmdbReader struct {
	db *maxminddb.Reader
}

// MaxMindOpen opens a MaxMind-format country database.
func MaxMindOpen(path string) (Reader, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	return &mmdbReader{db: db}, nil
}

func (m *mmdbReader) Lookup(ip netip.Addr) string {
	if m.db == nil || !ip.IsValid() {
		return ""
	}
	var rec countryRecord
	if err := m.db.Lookup(ip.Unmap().AsSlice(), &rec); err != nil {
		return ""
	}
	if rec.Country.ISOCode != "" {
		return strings.ToUpper(rec.Country.ISOCode)
	}
	return strings.ToUpper(rec.RegisteredCountry.ISOCode)
}

func (m *mmdbReader) Close() error { return m.db.Close() }
