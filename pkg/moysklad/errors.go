package moysklad

import (
	"errors"
	"fmt"
)

// ErrorKind partitions client failures by how callers should react.
type ErrorKind string

const (
	// KindAuth means the token was rejected (401/403). Not retryable.
	KindAuth ErrorKind = "auth"
	// KindRateLimited means 429 persisted after all retries.
	KindRateLimited ErrorKind = "rate_limited"
	// KindTransport covers network failures and 5xx after all retries.
	KindTransport ErrorKind = "transport"
	// KindProtocol covers schema mismatches and unexpected 4xx.
	KindProtocol ErrorKind = "protocol"
	// KindNotFound means 404 for a specific entity.
	KindNotFound ErrorKind = "not_found"
)

// Error is the typed failure returned by every client call.
type Error struct {
	Kind    ErrorKind
	Op      string // the API operation, e.g. "stock_report"
	Status  int    // HTTP status, 0 for transport failures
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("moysklad: %s: %s (status %d): %s", e.Op, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("moysklad: %s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a client Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// Retryable reports whether the failure may succeed on a later run.
func Retryable(err error) bool {
	return IsKind(err, KindTransport) || IsKind(err, KindRateLimited)
}

// kindForStatus maps an HTTP status to an error kind. Statuses below 400 do
// not map to errors and must not reach this function.
func kindForStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 404:
		return KindNotFound
	case status == 429:
		return KindRateLimited
	case status >= 500:
		return KindTransport
	default:
		return KindProtocol
	}
}
