package clio

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorKind classifies an API failure for retry and propagation decisions.
type ErrorKind string

const (
	// KindRateLimited represents a 429 rate limit response.
	KindRateLimited ErrorKind = "rate_limited"

	// KindUnauthorized represents a 401 response (expired or revoked token).
	KindUnauthorized ErrorKind = "unauthorized"

	// KindForbidden represents a 403 response (missing API scope).
	KindForbidden ErrorKind = "forbidden"

	// KindResultCap represents the API refusing a query whose result set
	// exceeds its maximum record count.
	KindResultCap ErrorKind = "result_cap"

	// KindNetwork represents network/timeout errors.
	KindNetwork ErrorKind = "network"

	// KindServer represents 5xx server errors.
	KindServer ErrorKind = "server"

	// KindOther represents any other HTTP error.
	KindOther ErrorKind = "other"
)

// APIError represents a Clio API failure with classification context.
type APIError struct {
	StatusCode int
	Kind       ErrorKind
	Message    string
	RetryAfter int // seconds, 0 when the server gave no hint
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("clio %s error (status %d): %s: %v",
			e.Kind, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("clio %s error (status %d): %s",
		e.Kind, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// ErrorKindOf extracts the classification from an error chain.
// Returns KindNetwork for non-API errors, "" for nil.
func ErrorKindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindNetwork
}

// IsResultCap reports whether the error indicates the per-query result cap.
func IsResultCap(err error) bool {
	return ErrorKindOf(err) == KindResultCap
}

// IsUnauthorized reports whether the error indicates an invalid or expired token.
func IsUnauthorized(err error) bool {
	return ErrorKindOf(err) == KindUnauthorized
}

// classifyStatus maps an HTTP status and response body to an ErrorKind.
// Result-cap detection is a best-effort heuristic: the API reports it as a
// client error whose message mentions the record maximum, not via a
// dedicated status code.
func classifyStatus(status int, body string, capPhrase string) ErrorKind {
	switch {
	case status == 429:
		return KindRateLimited
	case status == 401:
		return KindUnauthorized
	case status == 403:
		return KindForbidden
	case (status == 400 || status == 422) && capPhrase != "" &&
		strings.Contains(strings.ToLower(body), strings.ToLower(capPhrase)):
		return KindResultCap
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindOther
	default:
		return ""
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(kind ErrorKind) bool {
	switch kind {
	case KindRateLimited:
		// 429 is retried with the server-hinted wait
		return true
	case KindServer:
		// 5xx server errors should be retried
		return true
	case KindNetwork:
		// Network errors should be retried
		return true
	case KindUnauthorized, KindForbidden, KindResultCap, KindOther:
		// Never retried: auth problems need caller intervention, the
		// result cap is handled by partitioning, other 4xx wastes budget
		return false
	default:
		return false
	}
}
