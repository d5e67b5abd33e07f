package extract

import (
	"fmt"
	"strings"
)

// Reason tags a classified extractor failure.
type Reason string

const (
	ReasonPrivate       Reason = "private"
	ReasonLoginRequired Reason = "login_required"
	ReasonUnsupported   Reason = "unsupported"
	ReasonUnavailable   Reason = "unavailable"
	ReasonNotFound      Reason = "not_found"
	ReasonSiteChanged   Reason = "site_changed"
	ReasonOther         Reason = "other"
	ReasonUnknown       Reason = "unknown"
	ReasonTimeout       Reason = "timeout"
)

const (
	msgUnknown = "An unknown error occurred."
	msgTimeout = "Timed out while fetching video information."
)

// Failure is an upstream failure reported to clients. Failures are cached
// like successes, with a shorter lifetime.
type Failure struct {
	Reason  Reason
	Message string
	Timeout bool
}

func (f *Failure) Error() string {
	return fmt.Sprintf("extract %s: %s", f.Reason, f.Message)
}

// TimeoutFailure is returned when an invocation outlives its deadline.
func TimeoutFailure() *Failure {
	return &Failure{Reason: ReasonTimeout, Message: msgTimeout, Timeout: true}
}

// ParseError means the extractor exited cleanly but its document could not
// be decoded. It is never cached.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parse extractor output: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// Checked in order; the first match wins.
var classifyRules = []struct {
	needle  string
	reason  Reason
	message string
}{
	{"private video", ReasonPrivate, "This video is private."},
	{"Sign in to confirm", ReasonLoginRequired, "This video requires login. Cookies may be needed."},
	{"Unsupported URL", ReasonUnsupported, "This website or URL is not supported."},
	{"Video unavailable", ReasonUnavailable, "This video is unavailable."},
	{"404", ReasonNotFound, "Video not found (404)."},
	{"KeyError", ReasonSiteChanged, "This site has changed its structure."},
}

// Classify maps the stderr of a failed invocation to a Failure. Matching is
// by substring, so a line mentioning several conditions takes the earliest
// rule.
func Classify(stderr string) *Failure {
	if strings.TrimSpace(stderr) == "" {
		return &Failure{Reason: ReasonUnknown, Message: msgUnknown}
	}
	for _, rule := range classifyRules {
		if strings.Contains(stderr, rule.needle) {
			return &Failure{Reason: rule.reason, Message: rule.message}
		}
	}
	return &Failure{Reason: ReasonOther, Message: "yt-dlp ERROR: " + lastLine(stderr)}
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
