// Package model defines domain structs shared across the persistence and service layers.
package model

import "time"

// Format is one stream reported by the extractor, normalized for clients.
type Format struct {
	FormatID      string `json:"format_id"`
	Ext           string `json:"ext"`
	Resolution    string `json:"resolution"`
	Filesize      string `json:"filesize"`
	FilesizeBytes int64  `json:"filesize_bytes,omitempty"`
	Note          string `json:"note"`
	VCodec        string `json:"vcodec"`
	ACodec        string `json:"acodec"`
}

// IsVideoOnly reports whether the stream carries video without audio and
// therefore needs a merge with a separate audio stream to be playable.
func (f Format) IsVideoOnly() bool {
	return f.VCodec != "none" && f.ACodec == "none"
}

// MediaInfo is the resolved metadata for a source URL.
type MediaInfo struct {
	Title     string   `json:"title"`
	Thumbnail string   `json:"thumbnail"`
	Duration  float64  `json:"duration"`
	Formats   []Format `json:"formats"`
}

// RequestLogSource distinguishes first-party and reseller traffic.
type RequestLogSource string

const (
	RequestLogSourceWeb      RequestLogSource = "web"
	RequestLogSourceReseller RequestLogSource = "reseller"
)

// RequestLog is one appended resolution request.
type RequestLog struct {
	ID          string           `json:"id"`
	URL         string           `json:"url"`
	Domain      string           `json:"domain"`
	Timestamp   time.Time        `json:"timestamp"`
	CountryCode string           `json:"country_code,omitempty"`
	Source      RequestLogSource `json:"source"`
	Caller      string           `json:"caller,omitempty"`
}

// BlockedDomain is an administrator-blocked domain string.
type BlockedDomain struct {
	Domain    string    `json:"domain"`
	CreatedAt time.Time `json:"created_at"`
}

// DailyCount is the number of requests on one UTC day (YYYY-MM-DD).
type DailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// CountryCount is the number of requests from one country.
type CountryCount struct {
	CountryCode string `json:"country_code"`
	Count       int64  `json:"count"`
}

// DomainCount is the number of requests for one registrable domain.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int64  `json:"count"`
}

// Analytics aggregates request logs over a trailing window.
type Analytics struct {
	DailyCounts   []DailyCount   `json:"daily_counts"`
	CountryCounts []CountryCount `json:"country_counts"`
	TopDomains    []DomainCount  `json:"top_domains"`
}
