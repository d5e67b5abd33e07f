package netutil

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		xff     string
		xri     string
		trust   bool
		want    string
		wantKey string
	}{
		{name: "remote addr", remote: "203.0.113.9:5555", want: "203.0.113.9"},
		{name: "xff ignored when untrusted", remote: "10.0.0.2:1", xff: "198.51.100.7", want: "10.0.0.2"},
		{name: "xff first hop", remote: "10.0.0.2:1", xff: "198.51.100.7, 10.0.0.1", trust: true, want: "198.51.100.7"},
		{name: "x-real-ip fallback", remote: "10.0.0.2:1", xri: "198.51.100.8", trust: true, want: "198.51.100.8"},
		{name: "garbage xff falls back", remote: "10.0.0.2:1", xff: "nope", trust: true, want: "10.0.0.2"},
		{name: "ipv4-mapped unmapped", remote: "[::ffff:192.0.2.1]:80", want: "192.0.2.1"},
		{name: "ipv6", remote: "[2001:db8::1]:443", want: "2001:db8::1"},
		{name: "unparseable", remote: "pipe", want: "invalid IP", wantKey: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := ClientIP(r, tt.trust).String(); got != tt.want {
				t.Fatalf("ClientIP: got %q, want %q", got, tt.want)
			}
			wantKey := tt.wantKey
			if wantKey == "" {
				wantKey = tt.want
			}
			if got := ClientKey(r, tt.trust); got != wantKey {
				t.Fatalf("ClientKey: got %q, want %q", got, wantKey)
			}
		})
	}
}
