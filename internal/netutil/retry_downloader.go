package netutil

import (
	"context"
	"errors"
	"time"
)

// RetryDownloader decorates a Downloader with bounded retries on transport
// failures. HTTP status errors, malformed requests and caller cancellation
// are returned immediately.
type RetryDownloader struct {
	Inner Downloader
	// Attempts is the total number of tries including the first. Values
	// below 1 mean a single try.
	Attempts int
	// Backoff is the wait before retry n (1-based) is Backoff*n.
	Backoff time.Duration
}

// Download tries Inner until it succeeds, fails permanently or the attempts
// run out. The error from the last attempt is returned.
func (r *RetryDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 && r.Backoff > 0 {
			timer := time.NewTimer(r.Backoff * time.Duration(i))
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, lastErr
			case <-timer.C:
			}
		}

		body, err := r.Inner.Download(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !shouldRetry(err) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		// 5xx is worth another try, 4xx is not.
		return statusErr.StatusCode >= 500
	}

	var nonRetryable *NonRetryableError
	return !errors.As(err, &nonRetryable)
}
