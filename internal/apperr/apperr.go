// Package apperr is the error taxonomy shared by every user-visible call
// path. Handlers translate kinds to HTTP statuses; services only ever attach
// a kind and a safe message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	// KindTransient is the default for anything without an explicit kind:
	// storage, gateway or verifier unavailability. Safe for the caller to
	// retry under its own policy.
	KindTransient Kind = iota
	// KindValidation marks malformed or missing input. Never auto-retried.
	KindValidation
	// KindAccessDenied marks an authorization failure. The message must not
	// reveal which specific check failed.
	KindAccessDenied
	// KindNotFound marks a referenced entity that does not exist.
	KindNotFound
	// KindConflict marks a duplicate-creation request. Resolved internally
	// by returning the existing entity, so it never reaches a client.
	KindConflict
	// KindPermanentInvalid marks a push endpoint the gateway rejected for
	// good. Triggers silent pruning, never a user-visible error.
	KindPermanentInvalid
)

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

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf reports the kind of err, walking the wrap chain. Errors that never
// got a kind are treated as transient infrastructure failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error to the status code the REST surface reports.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAccessDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the safe, client-facing message for err. Unkinded errors
// collapse to a generic message so internals never leak.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return "internal server error"
}
