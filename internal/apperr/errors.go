// Package apperr defines the typed, recoverable errors surfaced by the
// checkout and payment services and their HTTP status mapping.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for rendering
type Kind string

// Error kinds
const (
	KindValidation        Kind = "ValidationError"
	KindUnauthorized      Kind = "Unauthorized"
	KindForbidden         Kind = "Forbidden"
	KindNotFound          Kind = "NotFound"
	KindConflict          Kind = "Conflict"
	KindInsufficientStock Kind = "InsufficientStock"
	KindInvalidTransition Kind = "InvalidTransition"
	KindSignatureMismatch Kind = "SignatureMismatch"
	KindGateway           Kind = "GatewayError"
	KindInternal          Kind = "Internal"
)

// Codes for the specific failures callers branch on
const (
	CodeCartEmpty               = "CART_EMPTY"
	CodeAddressNotFound         = "ADDRESS_NOT_FOUND"
	CodeProductNotFound         = "PRODUCT_NOT_FOUND"
	CodeProductInactive         = "PRODUCT_INACTIVE"
	CodeProductUnavailable      = "PRODUCT_UNAVAILABLE"
	CodePaymentAlreadyCompleted = "PAYMENT_ALREADY_COMPLETED"
)

// Error is a typed application error
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, and by code when the target carries one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// StatusCode maps the kind to an HTTP status
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindValidation, KindInsufficientStock, KindInvalidTransition, KindSignatureMismatch:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is matching by kind or code
var (
	ErrValidation              = &Error{Kind: KindValidation}
	ErrForbidden               = &Error{Kind: KindForbidden}
	ErrNotFound                = &Error{Kind: KindNotFound}
	ErrConflict                = &Error{Kind: KindConflict}
	ErrInsufficientStock       = &Error{Kind: KindInsufficientStock}
	ErrInvalidTransition       = &Error{Kind: KindInvalidTransition}
	ErrSignatureMismatch       = &Error{Kind: KindSignatureMismatch}
	ErrGateway                 = &Error{Kind: KindGateway}
	ErrCartEmpty               = &Error{Kind: KindValidation, Code: CodeCartEmpty}
	ErrAddressNotFound         = &Error{Kind: KindNotFound, Code: CodeAddressNotFound}
	ErrProductNotFound         = &Error{Kind: KindNotFound, Code: CodeProductNotFound}
	ErrProductInactive         = &Error{Kind: KindValidation, Code: CodeProductInactive}
	ErrProductUnavailable      = &Error{Kind: KindValidation, Code: CodeProductUnavailable}
	ErrPaymentAlreadyCompleted = &Error{Kind: KindConflict, Code: CodePaymentAlreadyCompleted}
)

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a ValidationError
func Validation(format string, args ...interface{}) *Error {
	return newError(KindValidation, format, args...)
}

// Unauthorized builds an Unauthorized error
func Unauthorized(format string, args ...interface{}) *Error {
	return newError(KindUnauthorized, format, args...)
}

// Forbidden builds a Forbidden error
func Forbidden(format string, args ...interface{}) *Error {
	return newError(KindForbidden, format, args...)
}

// NotFound builds a NotFound error
func NotFound(format string, args ...interface{}) *Error {
	return newError(KindNotFound, format, args...)
}

// Conflict builds a Conflict error
func Conflict(format string, args ...interface{}) *Error {
	return newError(KindConflict, format, args...)
}

// InsufficientStock builds an InsufficientStock error
func InsufficientStock(productID string, requested int) *Error {
	return newError(KindInsufficientStock, "insufficient stock for product %s (requested %d)", productID, requested)
}

// InvalidTransition builds an InvalidTransition error
func InvalidTransition(format string, args ...interface{}) *Error {
	return newError(KindInvalidTransition, format, args...)
}

// SignatureMismatch builds a SignatureMismatch error
func SignatureMismatch() *Error {
	return newError(KindSignatureMismatch, "payment signature verification failed")
}

// Gateway wraps a payment gateway failure
func Gateway(err error, format string, args ...interface{}) *Error {
	e := newError(KindGateway, format, args...)
	e.Err = err
	return e
}

// Internal wraps an unexpected failure
func Internal(err error, format string, args ...interface{}) *Error {
	e := newError(KindInternal, format, args...)
	e.Err = err
	return e
}

// WithCode attaches a machine readable code
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// From extracts an *Error from err, wrapping unknown errors as Internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err, "internal server error")
}
