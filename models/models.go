package models

import (
	"errors"
	"time"
)

// Link represents a shortened URL record. ShortCode is unique across all
// records, including deactivated ones; codes are never recycled while a
// record exists.
type Link struct {
	ShortCode     string    `json:"short_code"`
	OriginalURL   string    `json:"original_url"`
	IsCustomAlias bool      `json:"is_custom_alias"`
	IsActive      bool      `json:"is_active"`
	ClickCount    int64     `json:"click_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// ClickEvent represents a single click on a shortened URL. Events are
// append-only and never updated. VisitorHash is a SHA-256 of IP and user
// agent; the raw IP is never persisted.
type ClickEvent struct {
	EventID     string    `json:"event_id"`
	ShortCode   string    `json:"short_code"`
	ClickedAt   time.Time `json:"clicked_at"`
	IPAddress   string    `json:"-"` // in-flight only, consumed by geo enrichment
	VisitorHash string    `json:"visitor_hash"`
	UserAgent   string    `json:"user_agent"`
	Referer     string    `json:"referer"`
	Country     string    `json:"country"`
	DeviceType  string    `json:"device_type"`
	Browser     string    `json:"browser"`
	OS          string    `json:"os"`
}

// LinkStats represents aggregated statistics for a link.
type LinkStats struct {
	ShortCode      string `json:"short_code"`
	TotalClicks    int64  `json:"total_clicks"`
	UniqueVisitors int64  `json:"unique_visitors"`
}

// TimePoint represents a data point in time-series analytics.
type TimePoint struct {
	Day   time.Time `json:"day"`
	Count int64     `json:"count"`
}

// BreakdownEntry is a tally for one key of a breakdown dimension
// (device type, browser, country or referrer).
type BreakdownEntry struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Error taxonomy. ErrCodeTaken is an internal retry signal and is never
// surfaced to clients.
var (
	ErrNotFound           = errors.New("link not found")
	ErrCodeTaken          = errors.New("short code already taken")
	ErrAliasTaken         = errors.New("alias already taken")
	ErrInvalidAlias       = errors.New("invalid alias")
	ErrInvalidURL         = errors.New("invalid url")
	ErrExhaustedRetries   = errors.New("exhausted short code generation retries")
	ErrStorageUnavailable = errors.New("storage unavailable")
)
