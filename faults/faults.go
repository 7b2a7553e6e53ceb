// Package faults is the error taxonomy shared by the payment services and the
// HTTP layer.
package faults

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind uint8

const (
	Internal Kind = iota
	Validation
	NotFound
	Conflict
	Upstream
	Signature
	Unavailable
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Upstream:
		return "upstream"
	case Signature:
		return "signature"
	case Unavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

const (
	CodePaymentNotFound   = "PaymentNotFound"
	CodeVendorNotFound    = "VendorNotFound"
	CodeTxNotFound        = "TransactionNotFound"
	CodeVendorUnavailable = "VendorUnavailable"
	CodeInvalidSignature  = "InvalidSignature"
	CodeDuplicateEmail    = "DuplicateEmail"
	CodeEventInFlight     = "EventInFlight"
	CodeUnmatchedEvent    = "UnmatchedEvent"
	CodeInvalidRequest    = "ValidationError"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same Kind and Code, so sentinel values
// like ErrPaymentNotFound work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

var (
	ErrPaymentNotFound   = &Error{Kind: NotFound, Code: CodePaymentNotFound, Message: "payment not found"}
	ErrVendorNotFound    = &Error{Kind: NotFound, Code: CodeVendorNotFound, Message: "vendor not found"}
	ErrTxNotFound        = &Error{Kind: NotFound, Code: CodeTxNotFound, Message: "transaction not found"}
	ErrVendorUnavailable = &Error{Kind: Validation, Code: CodeVendorUnavailable, Message: "vendor unavailable"}
	ErrInvalidSignature  = &Error{Kind: Signature, Code: CodeInvalidSignature, Message: "invalid webhook signature"}
	ErrDuplicateEmail    = &Error{Kind: Conflict, Code: CodeDuplicateEmail, Message: "vendor email already registered"}
	ErrEventInFlight     = &Error{Kind: Conflict, Code: CodeEventInFlight, Message: "webhook event is being processed"}
)

func New(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, code string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func Validationf(format string, args ...any) *Error {
	return New(Validation, CodeInvalidRequest, format, args...)
}

func NotFoundf(code, format string, args ...any) *Error {
	return New(NotFound, code, format, args...)
}

func Upstreamf(err error, format string, args ...any) *Error {
	return Wrap(Upstream, "UpstreamError", err, format, args...)
}

// With returns a copy of a sentinel carrying a more specific message.
func With(sentinel *Error, format string, args ...any) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: fmt.Sprintf(format, args...)}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "InternalError"
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Validation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Signature:
		return http.StatusUnauthorized
	case Unavailable:
		return http.StatusServiceUnavailable
	case Upstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
