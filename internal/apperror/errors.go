package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnexpected Kind = iota
	KindNotFound
	KindInsufficientStock
	KindBusinessRule
	KindConflict
	KindUnauthorized
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInsufficientStock:
		return "insufficient_stock"
	case KindBusinessRule:
		return "business_rule"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	default:
		return "unexpected"
	}
}

// HTTPStatus is the status code a request boundary answers with for k.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindInsufficientStock, KindBusinessRule:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error is a typed failure raised by the domain layer.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, apperror.ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind markers for errors.Is.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	ErrBusinessRule      = &Error{Kind: KindBusinessRule}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrUnexpected        = &Error{Kind: KindUnexpected}
)

func newf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, nil, format, args...)
}

func InsufficientStock(format string, args ...any) *Error {
	return newf(KindInsufficientStock, nil, format, args...)
}

func BusinessRule(format string, args ...any) *Error {
	return newf(KindBusinessRule, nil, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newf(KindConflict, nil, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return newf(KindUnauthorized, nil, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newf(KindForbidden, nil, format, args...)
}

// Wrap marks cause with kind while keeping it reachable through errors.Is/As.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return newf(kind, cause, format, args...)
}

// Unexpected wraps an infrastructure failure.
func Unexpected(cause error, format string, args ...any) *Error {
	return newf(KindUnexpected, cause, format, args...)
}

// KindOf reports the kind of the first *Error in err's chain.
// Anything untyped is unexpected.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnexpected
}

// PublicMessage is what a caller may see. Unexpected errors are genericized.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindUnexpected {
		return appErr.Error()
	}
	return "internal server error"
}
