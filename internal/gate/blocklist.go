package gate

import (
	"strings"
	"sync/atomic"

	"github.com/juniorsir/stream-dl/internal/metrics"
)

const blockedMessage = "Access to this website is blocked by the administrator."

// BlockList holds the administrator-blocked domains. Matching is a plain
// substring test on the raw URL, so "evil.com" also blocks "notevil.com".
type BlockList struct {
	domains atomic.Pointer[[]string]
}

// NewBlockList returns a list seeded with domains.
func NewBlockList(domains []string) *BlockList {
	b := &BlockList{}
	b.Replace(domains)
	return b
}

// Replace swaps in a new domain set wholesale.
func (b *BlockList) Replace(domains []string) {
	snap := make([]string, 0, len(domains))
	for _, d := range domains {
		if d = strings.TrimSpace(d); d != "" {
			snap = append(snap, d)
		}
	}
	b.domains.Store(&snap)
}

// Domains returns the current snapshot.
func (b *BlockList) Domains() []string {
	p := b.domains.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Len returns the number of blocked domains.
func (b *BlockList) Len() int { return len(b.Domains()) }

// Check rejects rawURL when it contains any blocked domain.
func (b *BlockList) Check(rawURL string) error {
	for _, d := range b.Domains() {
		if strings.Contains(rawURL, d) {
			metrics.IncGateRejection("blocklist")
			return forbidden(blockedMessage)
		}
	}
	return nil
}
