package domain

import "time"

// ErrorCategory is a coarse classification bucket assigned to a posting
// failure for operator triage. Classification is best-effort diagnostic
// metadata and never drives control flow.
type ErrorCategory string

const (
	CategorySessionMissing ErrorCategory = "session_missing"
	CategorySessionExpired ErrorCategory = "session_expired"
	CategoryNetworkError   ErrorCategory = "network_error"
	CategoryCaptcha        ErrorCategory = "captcha"
	CategoryRateLimit      ErrorCategory = "rate_limit"
	CategoryUnknown        ErrorCategory = "unknown"
)

// ErrorLog is one append-only record of a failed posting attempt.
// Entries are never mutated after creation.
type ErrorLog struct {
	ID            string        `db:"id"             json:"id"`
	ListingID     string        `db:"listing_id"     json:"listing_id"`
	Category      ErrorCategory `db:"category"       json:"category"`
	Message       string        `db:"message"        json:"message"`
	ScreenshotRef *string       `db:"screenshot_ref" json:"screenshot_ref,omitempty"`
	CreatedAt     time.Time     `db:"created_at"     json:"created_at"`
}
