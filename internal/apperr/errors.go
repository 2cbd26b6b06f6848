// Package apperr defines the error taxonomy shared by the orchestration
// service and its collaborators. Business-rule rejections carry the
// machine-readable status string reported by the storage procedures so
// that handlers can surface it to callers unchanged, while
// infrastructure failures collapse to a generic message at the HTTP
// boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error for HTTP mapping and branching in callers.
type Kind int

const (
	// KindBadRequest marks business-rule rejections, invalid input and
	// provider-side rejections. The Status field holds the domain
	// status string (e.g. "INVALID_PAYMENT_TYPE", "ALREADY_PAID").
	KindBadRequest Kind = iota
	// KindConflict marks double-booking races and attempts to finalize
	// a payment record that already reached a terminal status.
	KindConflict
	// KindNotFound marks lookups of unknown transaction or payment ids.
	KindNotFound
	// KindTimeout marks a payment-status poll that exhausted its
	// attempt budget without observing a terminal provider status.
	KindTimeout
	// KindUpstream marks transport-level failures of an external
	// collaborator (booking service, auth module, payment providers).
	KindUpstream
	// KindStorage marks raw database errors.
	KindStorage
)

// Error is the taxonomy's concrete type. Status is the short
// machine-readable code; Detail is optional free text for humans.
type Error struct {
	Kind   Kind
	Status string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Status, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Status, e.Err)
	}
	return e.Status
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the error kind to the status code handlers respond with.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// BadRequest builds a business-rule rejection carrying the given status
// string.
func BadRequest(status string) *Error {
	return &Error{Kind: KindBadRequest, Status: status}
}

// BadRequestf builds a BadRequest with a formatted human-readable detail.
func BadRequestf(status, format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Status: status, Detail: fmt.Sprintf(format, args...)}
}

// Conflict builds a conflict error for double-booking races and
// already-finalized payment records.
func Conflict(status string) *Error {
	return &Error{Kind: KindConflict, Status: status}
}

// NotFound builds a lookup-miss error.
func NotFound(status string) *Error {
	return &Error{Kind: KindNotFound, Status: status}
}

// Timeout builds the distinct error returned when a status poll runs
// out of attempts.
func Timeout(status string) *Error {
	return &Error{Kind: KindTimeout, Status: status}
}

// Upstream wraps a transport failure against an external collaborator.
func Upstream(err error) *Error {
	return &Error{Kind: KindUpstream, Status: "UPSTREAM_UNAVAILABLE", Err: err}
}

// Storage wraps a raw database error.
func Storage(err error) *Error {
	return &Error{Kind: KindStorage, Status: "STORAGE_ERROR", Err: err}
}

// As extracts an *Error from err, or nil when err is of another type.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, k Kind) bool {
	e := As(err)
	return e != nil && e.Kind == k
}
