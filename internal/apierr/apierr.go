// Package apierr defines the closed set of error kinds the ingestion
// pipeline and query surface distinguish between, and maps them to HTTP
// status codes at the query API boundary.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the closed taxonomy from the component design: each kind
// dictates a specific recovery behavior in the coordinator and processor,
// not just a log severity.
type Kind string

const (
	// Validation covers malformed external input (bad address on the
	// admin API, unknown blacklist category). Never raised from inside
	// ingestion — malformed headers are silently dropped there, not
	// surfaced as errors.
	Validation Kind = "validation"
	// NotFound is a requested entity absent.
	NotFound Kind = "not_found"
	// ProviderTransient is retried inside the provider adapter; if
	// retries exhaust, the message is recorded as failed and ingestion
	// continues with the next one.
	ProviderTransient Kind = "provider_transient"
	// ProviderCursorExpired is caught by the Coordinator and triggers a
	// fallback to full_sync.
	ProviderCursorExpired Kind = "provider_cursor_expired"
	// StoreTransient bubbles all the way up: the invocation aborts and
	// SyncState is left unadvanced so the next invocation retries the
	// same page.
	StoreTransient Kind = "store_transient"
	// StoreIntegrity is e.g. a unique-violation on an address after a
	// lookup said it was absent — a lost race on insert-if-missing. The
	// caller re-reads and proceeds rather than failing the batch.
	StoreIntegrity Kind = "store_integrity"
	// Internal marks a programming error: logged with context and
	// re-raised rather than handled.
	Internal Kind = "internal"
)

// Error wraps an underlying error with a Kind so callers can branch on
// recovery behavior with errors.As instead of string matching.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err under kind, recording op for context in logs.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or one of the errors it wraps) carries kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf extracts the Kind carried by err, defaulting to Internal for
// errors that never passed through New.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// HTTPStatus maps a Kind to the status code the query API responds with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Validation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case ProviderTransient, StoreTransient:
		return http.StatusServiceUnavailable
	case ProviderCursorExpired, StoreIntegrity:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
