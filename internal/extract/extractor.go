package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/juniorsir/stream-dl/internal/log"
	"github.com/juniorsir/stream-dl/internal/metrics"
	"github.com/juniorsir/stream-dl/internal/model"
)

// DefaultTimeout bounds metadata and direct-URL invocations.
const DefaultTimeout = 45 * time.Second

// Config configures an Extractor.
type Config struct {
	Runner Runner
	// FFmpegPath is passed as --ffmpeg-location when non-empty.
	FFmpegPath string
	// CookiesFile is passed as --cookies when the file exists at call time.
	CookiesFile string
	Timeout     time.Duration
}

// Extractor builds extractor command lines and interprets their results.
type Extractor struct {
	runner      Runner
	ffmpegPath  string
	cookiesFile string
	timeout     time.Duration
	logger      zerolog.Logger
}

func New(cfg Config) *Extractor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Extractor{
		runner:      cfg.Runner,
		ffmpegPath:  strings.TrimSpace(cfg.FFmpegPath),
		cookiesFile: strings.TrimSpace(cfg.CookiesFile),
		timeout:     timeout,
		logger:      log.WithComponent("extract"),
	}
}

// commonArgs returns the flags shared by every invocation, terminated by
// "--" so a target starting with a dash is never read as a flag.
func (e *Extractor) commonArgs(target string) []string {
	args := []string{"--no-warnings", "--no-playlist"}
	if e.cookiesFile != "" {
		if st, err := os.Stat(e.cookiesFile); err == nil && st.Mode().IsRegular() {
			args = append(args, "--cookies", e.cookiesFile)
		}
	}
	if e.ffmpegPath != "" {
		args = append(args, "--ffmpeg-location", e.ffmpegPath)
	}
	return append(args, "--", target)
}

// MetadataArgs is the argument list for a metadata dump.
func (e *Extractor) MetadataArgs(target string) []string {
	return append([]string{"-J"}, e.commonArgs(target)...)
}

// DirectURLArgs is the argument list for resolving a format's media URL.
func (e *Extractor) DirectURLArgs(target, selector string) []string {
	return append([]string{"-f", selector, "--get-url"}, e.commonArgs(target)...)
}

// StreamArgs is the argument list for writing the selected format to stdout.
func (e *Extractor) StreamArgs(target, selector string) []string {
	return append([]string{"-f", selector, "-o", "-"}, e.commonArgs(target)...)
}

// run executes a bounded invocation and converts timeouts and non-zero exits
// into Failures. Any other error is returned as-is.
func (e *Extractor) run(ctx context.Context, op string, args []string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	started := time.Now()
	res, err := e.runner.Run(ctx, args)
	elapsed := time.Since(started)
	if res != nil && res.Duration > 0 {
		elapsed = res.Duration
	}
	ok := err == nil && res != nil && res.ExitCode == 0
	metrics.ObserveSubprocess(op, ok, elapsed)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			e.logger.Warn().Str("op", op).Dur("timeout", e.timeout).Msg("extractor timed out")
			return nil, TimeoutFailure()
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if res.ExitCode != 0 {
		failure := Classify(string(res.Stderr))
		e.logger.Info().
			Str("op", op).
			Int("exit_code", res.ExitCode).
			Str("reason", string(failure.Reason)).
			Msg("extractor failed")
		return nil, failure
	}
	return res, nil
}

// Metadata dumps and parses the target's metadata document.
func (e *Extractor) Metadata(ctx context.Context, target string) (*model.MediaInfo, error) {
	res, err := e.run(ctx, "metadata", e.MetadataArgs(target))
	if err != nil {
		return nil, err
	}
	info, err := ParseMediaInfo(res.Stdout)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	return info, nil
}

// DirectURL resolves the media URL of the selected format. When the
// selector yields several URLs (a video+audio pair), the first one wins.
func (e *Extractor) DirectURL(ctx context.Context, target, selector string) (string, error) {
	res, err := e.run(ctx, "get_url", e.DirectURLArgs(target, selector))
	if err != nil {
		return "", err
	}
	direct := firstLine(string(res.Stdout))
	if direct == "" {
		return "", &Failure{Reason: ReasonUnknown, Message: msgUnknown}
	}
	return direct, nil
}

// Stream starts a download of the selected format to the process's stdout.
// The process lives as long as ctx.
func (e *Extractor) Stream(ctx context.Context, target, selector string, stderr io.Writer) (Process, error) {
	proc, err := e.runner.Start(ctx, e.StreamArgs(target, selector), stderr)
	if err != nil {
		metrics.ObserveSubprocess("stream", false, 0)
		return nil, err
	}
	return proc, nil
}
