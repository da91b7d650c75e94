// Package errors defines the log search core's error taxonomy, adapted
// from the indexing-error shape: a typed Kind plus a wrapping struct
// that preserves the underlying cause for errors.Is/As.
package errors

import (
	"fmt"
	"time"
)

// Kind classifies an error for the purposes of propagation and
// surfacing to callers.
type Kind string

const (
	KindBadRequest     Kind = "bad_request"
	KindRegexError     Kind = "regex_error"
	KindFileDenied     Kind = "file_denied"
	KindIOError        Kind = "io_error"
	KindRegexTimeout   Kind = "regex_timeout"
	KindHitCap         Kind = "hit_cap"
	KindByteCap        Kind = "byte_cap"
	KindDeadline       Kind = "deadline"
	KindQuotaExceeded  Kind = "quota_exceeded"
	KindCursorExpired  Kind = "cursor_expired"
	KindCursorMismatch Kind = "cursor_mismatch"
	KindInternal       Kind = "internal"
)

// SearchError wraps an underlying error with a Kind and enough context
// to populate failed_files entries or map to an HTTP/JSON-RPC status.
type SearchError struct {
	Kind       Kind
	Op         string
	Path       string
	Underlying error
	Timestamp  time.Time

	// Recoverable indicates the caller may retry (e.g. a fresh query
	// after cursor_expired), as opposed to a structural failure.
	Recoverable bool
}

// New creates a SearchError with the given kind and operation label.
func New(kind Kind, op string, err error) *SearchError {
	return &SearchError{
		Kind:       kind,
		Op:         op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithPath attaches the file path this error concerns.
func (e *SearchError) WithPath(path string) *SearchError {
	e.Path = path
	return e
}

// WithRecoverable marks whether the caller may retry.
func (e *SearchError) WithRecoverable(recoverable bool) *SearchError {
	e.Recoverable = recoverable
	return e
}

func (e *SearchError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s failed for %s: %v", e.Kind, e.Op, e.Path, e.Underlying)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Kind, e.Op, e.Underlying)
}

// Unwrap allows errors.Is/As to see through to the underlying cause.
func (e *SearchError) Unwrap() error {
	return e.Underlying
}

// IsRecoverable reports whether the caller should be told to retry.
func (e *SearchError) IsRecoverable() bool {
	return e.Recoverable
}

// HTTPStatus maps a Kind to the HTTP status callers should surface.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest, KindRegexError, KindCursorExpired, KindCursorMismatch:
		return 400
	case KindFileDenied:
		return 403
	case KindDeadline:
		return 200
	case KindHitCap, KindByteCap:
		return 206
	case KindQuotaExceeded:
		return 429
	case KindInternal, KindIOError:
		return 500
	default:
		return 500
	}
}

// JSONRPCCode maps a Kind to a JSON-RPC 2.0 error code. bad_request and
// regex_error map to the standard -32602 "invalid params" code; every
// other kind uses the -32000..-32099 "server error" band.
func (k Kind) JSONRPCCode() int {
	switch k {
	case KindBadRequest, KindRegexError:
		return -32602 // invalid params
	case KindFileDenied:
		return -32001
	case KindQuotaExceeded:
		return -32002
	case KindCursorExpired, KindCursorMismatch:
		return -32003
	case KindDeadline:
		return -32004
	case KindInternal, KindIOError:
		return -32000
	default:
		return -32000
	}
}
