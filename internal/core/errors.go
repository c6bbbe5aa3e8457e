// internal/core/errors.go
package core

import (
	"errors"
	"fmt"
)

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Errorf wraps a formatted cause under base.
func Errorf(base *Error, format string, args ...any) *Error {
	return WrapError(base, fmt.Errorf(format, args...))
}

// Predefined errors
var (
	// Data errors
	ErrSymbolNotFound   = &Error{Code: "SYMBOL_NOT_FOUND", Message: "symbol not found"}
	ErrInvalidSymbol    = &Error{Code: "INVALID_SYMBOL", Message: "invalid symbol format"}
	ErrInvalidQuery     = &Error{Code: "INVALID_QUERY", Message: "search query must be at least 2 characters"}
	ErrMalformedPayload = &Error{Code: "MALFORMED_PAYLOAD", Message: "malformed provider payload"}
	ErrInsufficientData = &Error{Code: "INSUFFICIENT_DATA", Message: "insufficient data for analysis"}
	ErrNoProvider       = &Error{Code: "NO_PROVIDER", Message: "no provider configured"}
	ErrUnknownPayload   = &Error{Code: "UNKNOWN_PAYLOAD", Message: "no adapter for payload source"}

	// Upstream errors
	ErrUpstreamTimeout     = &Error{Code: "UPSTREAM_TIMEOUT", Message: "upstream request timed out"}
	ErrUpstreamRateLimited = &Error{Code: "UPSTREAM_RATE_LIMITED", Message: "upstream provider throttled the request"}
	ErrUpstreamFailed      = &Error{Code: "UPSTREAM_FAILED", Message: "upstream request failed"}

	// Cache errors
	ErrCacheFailed = &Error{Code: "CACHE_FAILED", Message: "cache substrate failed"}

	// Request errors
	ErrBatchTooLarge      = &Error{Code: "BATCH_TOO_LARGE", Message: "too many symbols in batch"}
	ErrWatchlistFull      = &Error{Code: "WATCHLIST_FULL", Message: "watchlist is full"}
	ErrWatchlistDuplicate = &Error{Code: "WATCHLIST_DUPLICATE", Message: "symbol already in watchlist"}
	ErrNotInWatchlist     = &Error{Code: "NOT_IN_WATCHLIST", Message: "symbol not in watchlist"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)

// IsRetryable reports whether err is an upstream failure worth retrying later
// or covering with cached data.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamTimeout) ||
		errors.Is(err, ErrUpstreamRateLimited) ||
		errors.Is(err, ErrUpstreamFailed)
}
