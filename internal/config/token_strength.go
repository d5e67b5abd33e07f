package config

import zxcvbn "github.com/ccojocar/zxcvbn-go"

const weakTokenScoreThreshold = 3

// IsWeakToken returns whether token strength is considered weak.
// An empty token disables the surface it protects, so it is treated as not weak.
func IsWeakToken(token string) bool {
	if token == "" {
		return false
	}
	result := zxcvbn.PasswordStrength(token, nil)
	return result.Score < weakTokenScoreThreshold
}

// WeakSecrets returns the names of the configured secrets that score below
// the strength threshold.
func (c *EnvConfig) WeakSecrets() []string {
	var weak []string
	if IsWeakToken(c.AdminToken) {
		weak = append(weak, "STREAMDL_ADMIN_TOKEN")
	}
	if IsWeakToken(c.TicketSecret) {
		weak = append(weak, "STREAMDL_TICKET_SECRET")
	}
	if IsWeakToken(c.ResellerSecret) {
		weak = append(weak, "STREAMDL_RESELLER_SECRET")
	}
	return weak
}
