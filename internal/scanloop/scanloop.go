// Package scanloop runs periodic housekeeping sweeps on a jittered timer.
package scanloop

import (
	"math/rand/v2"
	"time"
)

const (
	MinEvery = 10 * time.Second
	MaxEvery = 5 * time.Minute
)

// Cadence is the spacing between sweeps: Every plus a random share of Jitter.
type Cadence struct {
	Every  time.Duration
	Jitter time.Duration
}

// ForWindow picks a cadence for expiring entries that live for window: four
// sweeps per window, clamped to [MinEvery, MaxEvery], with 10% jitter.
func ForWindow(window time.Duration) Cadence {
	every := min(max(window/4, MinEvery), MaxEvery)
	return Cadence{Every: every, Jitter: every / 10}
}

func (c Cadence) next() time.Duration {
	every := c.Every
	if every <= 0 {
		every = time.Second
	}
	if c.Jitter > 0 {
		every += time.Duration(rand.Int64N(int64(c.Jitter)))
	}
	return every
}

// Run calls fn once per cadence tick until stopCh is closed. fn is never
// called concurrently with itself.
func Run(stopCh <-chan struct{}, c Cadence, fn func()) {
	timer := time.NewTimer(c.next())
	defer timer.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-timer.C:
		}
		fn()
		timer.Reset(c.next())
	}
}
