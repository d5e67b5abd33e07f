package gate

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// ResellerSecretHeader carries the marketplace proxy secret.
const ResellerSecretHeader = "X-RapidAPI-Proxy-Secret"

// SecretChecker compares a presented credential with a configured secret in
// constant time. An empty configured secret disables the surface.
type SecretChecker struct {
	secret []byte
}

// NewSecretChecker returns a checker for secret.
func NewSecretChecker(secret string) *SecretChecker {
	return &SecretChecker{secret: []byte(secret)}
}

// Enabled reports whether a secret is configured.
func (s *SecretChecker) Enabled() bool { return len(s.secret) > 0 }

// Match reports whether presented equals the secret.
func (s *SecretChecker) Match(presented string) bool {
	if !s.Enabled() {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), s.secret) == 1
}

// CheckAdmin validates an "Authorization: Bearer <secret>" header.
func (s *SecretChecker) CheckAdmin(r *http.Request) error {
	if !s.Enabled() {
		return forbidden("Admin not configured.")
	}
	token, ok := BearerToken(r)
	if !ok || !s.Match(token) {
		return unauthorized("Unauthorized", nil)
	}
	return nil
}

// CheckReseller validates the reseller proxy-secret header.
func (s *SecretChecker) CheckReseller(r *http.Request) error {
	if !s.Enabled() || !s.Match(r.Header.Get(ResellerSecretHeader)) {
		return forbidden("Forbidden. You are not authorized to access this endpoint directly.")
	}
	return nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(auth[len(prefix):])
	return token, token != ""
}
