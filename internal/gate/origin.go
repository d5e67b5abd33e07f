package gate

import (
	"net/http"
	"strings"
)

// OriginChecker restricts ticket issuance to the configured front end in
// production mode.
type OriginChecker struct {
	appURL   string
	enforced bool
}

// NewOriginChecker returns a checker. When enforced is false every request
// passes.
func NewOriginChecker(appURL string, enforced bool) *OriginChecker {
	return &OriginChecker{appURL: appURL, enforced: enforced}
}

// Check inspects Origin, falling back to Referer.
func (o *OriginChecker) Check(r *http.Request) error {
	if !o.enforced {
		return nil
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = r.Header.Get("Referer")
	}
	if o.appURL != "" && origin != "" && strings.HasPrefix(origin, o.appURL) {
		return nil
	}
	return forbidden("Forbidden: Access from this origin is not allowed.")
}
