package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/juniorsir/stream-dl/internal/extract"
	"github.com/juniorsir/stream-dl/internal/log"
	"github.com/juniorsir/stream-dl/internal/metrics"
)

// ErrNoOutput means the extractor exited without writing any media.
var ErrNoOutput = errors.New("extractor produced no output")

// Extractor is the subset of *extract.Extractor the dispatcher needs.
type Extractor interface {
	DirectURL(ctx context.Context, target, selector string) (string, error)
	Stream(ctx context.Context, target, selector string, stderr io.Writer) (extract.Process, error)
}

type Dispatcher struct {
	extractor Extractor
	logger    zerolog.Logger
}

func NewDispatcher(extractor Extractor) *Dispatcher {
	return &Dispatcher{extractor: extractor, logger: log.WithComponent("download")}
}

// DirectURL resolves the location for a redirect-mode download.
func (d *Dispatcher) DirectURL(ctx context.Context, req Request) (string, error) {
	sel, err := req.Selector()
	if err != nil {
		return "", err
	}
	direct, err := d.extractor.DirectURL(ctx, req.URL, sel)
	metrics.IncDownload("redirect", err == nil)
	if err != nil {
		return "", err
	}
	return direct, nil
}

const copyBufferSize = 32 << 10

// Stream pipes the selected format into w. Response headers are committed
// only once the first byte of media is available; until then an error is
// returned and w is untouched. Once committed, failures end the response
// and Stream returns nil. The subprocess is bound to ctx.
func (d *Dispatcher) Stream(ctx context.Context, w http.ResponseWriter, req Request) error {
	sel, err := req.Selector()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := d.logger.With().Str("url", req.URL).Str("format", sel).Logger()
	stderr := newLineLogger(logger)
	started := time.Now()

	proc, err := d.extractor.Stream(ctx, req.URL, sel, stderr)
	if err != nil {
		metrics.IncDownload("stream", false)
		return fmt.Errorf("start stream: %w", err)
	}
	out := proc.Stdout()

	buf := make([]byte, copyBufferSize)
	n, readErr := io.ReadAtLeast(out, buf, 1)
	if n == 0 {
		cancel()
		waitErr := proc.Wait()
		stderr.Flush()
		metrics.IncDownload("stream", false)
		metrics.ObserveSubprocess("stream", false, time.Since(started))
		return fmt.Errorf("%w: %w", ErrNoOutput, errors.Join(readErr, waitErr))
	}

	h := w.Header()
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Content-Disposition", ContentDisposition(req.Title))
	w.WriteHeader(http.StatusOK)

	written, copyErr := writeAll(w, buf[:n])
	if copyErr == nil {
		var rest int64
		rest, copyErr = io.CopyBuffer(w, out, buf)
		written += rest
	}
	if copyErr != nil {
		cancel()
	}
	waitErr := proc.Wait()
	stderr.Flush()

	ok := copyErr == nil && waitErr == nil
	metrics.StreamedBytesTotal.Add(float64(written))
	metrics.IncDownload("stream", ok)
	metrics.ObserveSubprocess("stream", ok, time.Since(started))

	ev := logger.Info()
	if !ok {
		ev = logger.Warn().AnErr("copy_err", copyErr).AnErr("wait_err", waitErr)
	}
	ev.Int64("bytes", written).Dur("elapsed", time.Since(started)).Msg("stream finished")
	return nil
}

func writeAll(w io.Writer, p []byte) (int64, error) {
	n, err := w.Write(p)
	return int64(n), err
}
