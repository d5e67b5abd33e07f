package gate

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/juniorsir/stream-dl/internal/metrics"
	"github.com/juniorsir/stream-dl/internal/scanloop"
)

type window struct {
	start time.Time
	count int
}

// RateLimiter is a fixed-window counter per key: at most limit requests per
// window, with the window starting at a key's first request.
type RateLimiter struct {
	name     string
	limit    int
	window   time.Duration
	message  string
	now      func() time.Time
	counters *xsync.Map[string, window]

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRateLimiter creates a limiter. name labels metrics; message is returned
// to rejected callers. now may be nil.
func NewRateLimiter(name string, limit int, win time.Duration, message string, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		name:     name,
		limit:    limit,
		window:   win,
		message:  message,
		now:      now,
		counters: xsync.NewMap[string, window](),
		stopCh:   make(chan struct{}),
	}
}

// Allow counts one request for key. It returns a KindRateLimited *Error
// carrying the time until the window resets once the limit is exceeded.
func (l *RateLimiter) Allow(key string) error {
	now := l.now()
	var retryAfter time.Duration
	allowed := true

	l.counters.Compute(key, func(w window, loaded bool) (window, xsync.ComputeOp) {
		if !loaded || !now.Before(w.start.Add(l.window)) {
			return window{start: now, count: 1}, xsync.UpdateOp
		}
		if w.count >= l.limit {
			allowed = false
			retryAfter = w.start.Add(l.window).Sub(now)
			return w, xsync.CancelOp
		}
		w.count++
		return w, xsync.UpdateOp
	})

	if allowed {
		return nil
	}
	metrics.IncRateLimited(l.name)
	return &Error{Kind: KindRateLimited, Message: l.message, RetryAfter: retryAfter}
}

// RetryAfterSeconds renders d as whole seconds for a Retry-After header,
// rounding up and never below 1.
func RetryAfterSeconds(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("%d", secs)
}

// Size returns the number of tracked keys.
func (l *RateLimiter) Size() int { return l.counters.Size() }

// Sweep drops keys whose window has ended.
func (l *RateLimiter) Sweep() {
	now := l.now()
	l.counters.Range(func(key string, w window) bool {
		if now.Before(w.start.Add(l.window)) {
			return true
		}
		l.counters.Compute(key, func(cur window, loaded bool) (window, xsync.ComputeOp) {
			if !loaded || now.Before(cur.start.Add(l.window)) {
				return cur, xsync.CancelOp // restarted concurrently
			}
			return cur, xsync.DeleteOp
		})
		return true
	})
}

// Start runs Sweep on a jittered loop, a few times per window, until Stop.
func (l *RateLimiter) Start() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		scanloop.Run(l.stopCh, scanloop.ForWindow(l.window), l.Sweep)
	}()
}

// Stop ends the sweep loop.
func (l *RateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}
