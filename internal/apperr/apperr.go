// Package apperr defines the error taxonomy shared by every pipeline stage.
package apperr

import (
	"context"
	"errors"
	"net/http"
)

// Kind classifies a failure for the envelope boundary.
type Kind int

const (
	// Service is the zero value so unclassified errors are treated as internal.
	Service Kind = iota
	Validation
	NotFound
	Transient
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "Validation"
	case NotFound:
		return "NotFound"
	case Transient:
		return "Transient"
	default:
		return "Service"
	}
}

// Error is a typed pipeline error. Detail is safe to show to callers; Err is not.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so errors.Is(err, apperr.ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Detail == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind-only sentinels for errors.Is.
var (
	ErrValidation = &Error{Kind: Validation}
	ErrNotFound   = &Error{Kind: NotFound}
	ErrService    = &Error{Kind: Service}
	ErrTransient  = &Error{Kind: Transient}
)

// New returns an error of kind with a client-safe detail.
func New(kind Kind, detail string) error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap is New with an underlying cause that is never shown to clients.
func Wrap(kind Kind, detail string, err error) error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

func Validationf(detail string) error { return New(Validation, detail) }
func NotFoundf(detail string) error   { return New(NotFound, detail) }

// KindOf reports the kind of err. Context errors and untyped errors are Service.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Service
}

// Public renders err the way callers see it: the kind name plus the safe detail.
// Untyped errors never leak their message.
func Public(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Service.String() + ": request cancelled"
	}
	return Service.String()
}

// ExitCode maps err to the CLI contract: 0 ok, 1 validation, 2 not found, 3 service.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case Validation:
		return 1
	case NotFound:
		return 2
	default:
		return 3
	}
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch KindOf(err) {
	case Validation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Transient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
