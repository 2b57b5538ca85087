// Package apperror classifies errors raised anywhere in the dispatch system
// into the kinds the core recognizes, so the HTTP layer and the worker
// runtime can map any error to a status code or a job result without
// handler-by-handler duplication.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies one of the error categories the core distinguishes.
type Kind int

const (
	// KindUnknown is the zero value; treated as an internal error.
	KindUnknown Kind = iota
	// KindValidation marks bad input from a producer. Reported with 400.
	KindValidation
	// KindNotFound marks a missing Job or Worker. Reported with 404.
	KindNotFound
	// KindTransient marks a KV store or HTTP hiccup in the worker loop.
	// Logged, polling continues, job state is not changed.
	KindTransient
	// KindAdapterFailure marks a terminal send error from an adapter
	// (primary and backup both exhausted). The job moves to failed.
	KindAdapterFailure
	// KindResourceExhaustion marks a script runner that could not acquire
	// host resources within its retry budget. The task is marked failed.
	KindResourceExhaustion
	// KindFatal marks a worker init failure. The process exits non-zero
	// and the supervisor restarts it.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	case KindAdapterFailure:
		return "adapter_failure"
	case KindResourceExhaustion:
		return "resource_exhaustion"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind, so callers can branch on
// category without string matching.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an *Error of the given kind with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap creates an *Error of the given kind wrapping err.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Validationf builds a KindValidation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a KindNotFound error with a formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err, walking Unwrap chains.
// Returns KindUnknown if err is nil or carries no *Error.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// HTTPStatus maps a Kind to the status code spec.md §4.1/§7 prescribes.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Sentinel errors for the handful of cases that are checked by identity
// rather than by Kind — notably the claim CAS, which must distinguish
// "no such job" from "lost the race" without allocating a *Error each time.
var (
	// ErrNoRows signals a claim or update affected zero rows — the CAS lost.
	ErrNoRows = errors.New("dispatch: no rows affected")
	// ErrClosed signals use of a store or transport after Close.
	ErrClosed = errors.New("dispatch: closed")
)
