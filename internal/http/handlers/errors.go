// Package handlers defines the HTTP-layer error codes used across all API
// endpoints. Codes are lowercase snake_case and stable; clients branch on
// them for programmatic error handling. Handlers pick the most specific
// matching code and pass it to fail() with the corresponding status.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeUnknownModel      = "unknown_model"
	ErrCodeRequestInFlight   = "request_in_flight"
	ErrCodeCompletionFailed  = "completion_failed"
	ErrCodePersistenceFailed = "persistence_failed"
)
