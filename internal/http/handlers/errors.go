// Package handlers defines HTTP-layer error codes used across all API
// endpoints. Codes are lowercase snake_case, stable, and machine-readable;
// handlers pick the most specific one and pass it to fail() together with an
// HTTP status and a human-readable message.
package handlers

const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeNotFound      = "not_found"
	ErrCodeConflict      = "conflict"
	ErrCodeRateLimited   = "rate_limited"
	ErrCodeInternal      = "internal_error"
	ErrCodeUnprocessable = "unprocessable"

	// Domain-specific:
	ErrCodeInvalidRule      = "invalid_recurrence_rule"
	ErrCodeInvalidTimezone  = "invalid_timezone"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
