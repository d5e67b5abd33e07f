package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/juniorsir/stream-dl/internal/model"
)

// rawInfo is the subset of the extractor's JSON document we read. Optional
// fields are pointers so absence and zero stay distinguishable.
type rawInfo struct {
	Title     *string     `json:"title"`
	Thumbnail *string     `json:"thumbnail"`
	Duration  *float64    `json:"duration"`
	Formats   []rawFormat `json:"formats"`
}

type rawFormat struct {
	FormatID       *string  `json:"format_id"`
	Ext            *string  `json:"ext"`
	Resolution     *string  `json:"resolution"`
	Height         *float64 `json:"height"`
	Filesize       *float64 `json:"filesize"`
	FilesizeApprox *float64 `json:"filesize_approx"`
	TBR            *float64 `json:"tbr"`
	FormatNote     *string  `json:"format_note"`
	VCodec         *string  `json:"vcodec"`
	ACodec         *string  `json:"acodec"`
}

var errMissingTitle = errors.New("missing title")

// ParseMediaInfo decodes a `-J` document into MediaInfo.
func ParseMediaInfo(data []byte) (*model.MediaInfo, error) {
	var raw rawInfo
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if raw.Title == nil {
		return nil, errMissingTitle
	}

	info := &model.MediaInfo{
		Title:     *raw.Title,
		Thumbnail: deref(raw.Thumbnail, ""),
		Duration:  deref(raw.Duration, 0),
		Formats:   make([]model.Format, 0, len(raw.Formats)),
	}
	for _, f := range raw.Formats {
		if keep, ok := mapFormat(f, info.Duration); ok {
			info.Formats = append(info.Formats, keep)
		}
	}
	return info, nil
}

func mapFormat(f rawFormat, duration float64) (model.Format, bool) {
	id := deref(f.FormatID, "")
	ext := deref(f.Ext, "")
	vcodec := deref(f.VCodec, "none")
	if id == "" || ext == "mhtml" || strings.Contains(vcodec, "images") {
		return model.Format{}, false
	}
	size := formatSize(f, duration)
	return model.Format{
		FormatID:      id,
		Ext:           ext,
		Resolution:    formatResolution(f),
		Filesize:      HumanSize(size),
		FilesizeBytes: size,
		Note:          deref(f.FormatNote, ""),
		VCodec:        vcodec,
		ACodec:        deref(f.ACodec, "none"),
	}, true
}

func formatSize(f rawFormat, duration float64) int64 {
	switch {
	case f.Filesize != nil && *f.Filesize > 0:
		return int64(*f.Filesize)
	case f.FilesizeApprox != nil && *f.FilesizeApprox > 0:
		return int64(*f.FilesizeApprox)
	case f.TBR != nil && *f.TBR > 0 && duration > 0:
		return int64(math.Round(*f.TBR * 1000 / 8 * duration))
	}
	return 0
}

func formatResolution(f rawFormat) string {
	if r := deref(f.Resolution, ""); r != "" {
		return r
	}
	if f.Height != nil && *f.Height > 0 {
		return strconv.Itoa(int(*f.Height)) + "p"
	}
	return "audio only"
}

// HumanSize renders a byte count in MiB, switching to GiB from 1000 MiB.
// Unknown sizes (zero or negative) render as N/A.
func HumanSize(bytes int64) string {
	if bytes <= 0 {
		return "N/A"
	}
	mib := float64(bytes) / (1024 * 1024)
	if mib >= 1000 {
		return fmt.Sprintf("%.2f GiB", mib/1024)
	}
	return fmt.Sprintf("%.1f MiB", mib)
}

func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
