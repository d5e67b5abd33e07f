// Package download hands a selected format to the client, either as a
// redirect to the media URL or as a proxied stream of the extractor's output.
package download

import (
	"errors"
	"strings"
)

// ErrMissingFormat is returned when neither a format id nor a video/audio
// pair was supplied.
var ErrMissingFormat = errors.New("URL and format_id required")

// Request selects what to download.
type Request struct {
	URL           string
	FormatID      string
	VideoFormatID string
	AudioFormatID string
	Title         string
	// VideoOnly marks FormatID as a video-only stream that needs the best
	// audio merged in.
	VideoOnly bool
}

// Selector builds the extractor's format selector.
func (r Request) Selector() (string, error) {
	v, a := strings.TrimSpace(r.VideoFormatID), strings.TrimSpace(r.AudioFormatID)
	if v != "" && a != "" {
		return v + "+" + a, nil
	}
	id := strings.TrimSpace(r.FormatID)
	if id == "" {
		return "", ErrMissingFormat
	}
	if r.VideoOnly {
		return id + "+bestaudio", nil
	}
	return id, nil
}

const maxFilenameLen = 100

// SanitizeFilename keeps [A-Za-z0-9_.-], replaces everything else with an
// underscore and truncates to 100 characters. An empty title becomes "video".
func SanitizeFilename(title string) string {
	if title == "" {
		title = "video"
	}
	var b strings.Builder
	for _, r := range title {
		if b.Len() == maxFilenameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// ContentDisposition is the attachment header for a streamed download.
func ContentDisposition(title string) string {
	return `attachment; filename="` + SanitizeFilename(title) + `.mp4"`
}
