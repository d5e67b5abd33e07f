package netutil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPStatusError indicates the server responded, but with an unexpected
// HTTP status code. This is a non-network failure.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("downloader: unexpected status %d from %s", e.StatusCode, e.URL)
}

// NonRetryableError indicates request setup failed before any transport
// attempt was made (for example, malformed URL).
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("downloader: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// Downloader fetches remote resources fully into memory.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Stream is an open upstream body. Closing it releases the request context.
type Stream struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// DirectDownloader downloads via a standard HTTP client.
type DirectDownloader struct {
	Client      *http.Client
	TimeoutFn   func() time.Duration
	UserAgentFn func() string
	// MaxBytes caps the body size; reads past the cap fail with
	// *http.MaxBytesError. Zero means unlimited.
	MaxBytes int64
}

// NewDirectDownloader creates a downloader that pulls timeout/user-agent
// from callbacks on each request.
func NewDirectDownloader(timeoutFn func() time.Duration, userAgentFn func() string) *DirectDownloader {
	if timeoutFn == nil {
		panic("netutil: NewDirectDownloader requires non-nil timeoutFn")
	}
	if userAgentFn == nil {
		panic("netutil: NewDirectDownloader requires non-nil userAgentFn")
	}
	return &DirectDownloader{
		Client:      &http.Client{},
		TimeoutFn:   timeoutFn,
		UserAgentFn: userAgentFn,
	}
}

// Download fetches the URL and returns the response body.
func (d *DirectDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	s, err := d.Open(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	defer s.Body.Close()

	body, err := io.ReadAll(s.Body)
	if err != nil {
		return nil, fmt.Errorf("downloader: %w", err)
	}
	return body, nil
}

// Open issues a GET with the extra header and returns the body unread.
// Only 200 responses are accepted.
func (d *DirectDownloader) Open(ctx context.Context, url string, header http.Header) (*Stream, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cancel := context.CancelFunc(func() {})
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		if timeout := d.TimeoutFn(); timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, timeout)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, &NonRetryableError{Err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if ua := d.UserAgentFn(); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("downloader: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, URL: url}
	}

	var body io.ReadCloser = resp.Body
	if d.MaxBytes > 0 {
		body = http.MaxBytesReader(nil, resp.Body, d.MaxBytes)
	}
	return &Stream{
		Body:          &cancelOnClose{ReadCloser: body, cancel: cancel},
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
