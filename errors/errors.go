package errors

import (
	"errors"
	"net/http"
	"strings"
)

type ErrCode string

const (
	ErrCodeNotImplemented ErrCode = "NotImplemented"
	ErrCodeNotFound       ErrCode = "NotFound"
	ErrCodeServiceFailure ErrCode = "ServiceFailure"
	ErrCodeAPIBadRequest  ErrCode = "BadRequest"
	ErrCodeExisted        ErrCode = "Existed"
	ErrCodeUnauthorized   ErrCode = "Unauthorized"
	ErrCodeForbidden      ErrCode = "Forbidden"
	ErrCodeEmptyContent   ErrCode = "EmptyContent"
	ErrCodeMalformedURL   ErrCode = "MalformedUrl"
	ErrCodePersistence    ErrCode = "PersistenceError"
	ErrCodeOversized      ErrCode = "Oversized"
	ErrCodeOffPalette     ErrCode = "OffPalette"
)

type PinErr struct {
	Code  ErrCode
	msg   string
	cause error
}

func (e *PinErr) Error() string {
	return e.msg
}

// Trace returns the stacktrace associated with the error
func (e *PinErr) Trace() string {
	b := &strings.Builder{}
	b.WriteString(e.msg)
	indent := "\n"
	err := errors.Unwrap(e)
	for err != nil {
		indent += "\t"
		b.WriteString(indent)
		b.WriteString("Caused by: ")
		b.WriteString(err.Error())
		err = errors.Unwrap(err)
	}
	return b.String()
}

func (e *PinErr) Unwrap() error {
	return e.cause
}

func (e *PinErr) WithCause(c error) *PinErr {
	e.cause = c
	return e
}

func (e *PinErr) WithMsg(m string) *PinErr {
	e.msg = m
	return e
}

// prefer appSpecificErr(msg) over appSpecificErr(msg, cause) since the latter's method signature has less
// readability - user needs to look up docs to know the 2nd param is for cause, while the first one can use
// WithCause() to be explicit
func newPinErr(code ErrCode, m string) *PinErr {
	return &PinErr{Code: code, msg: m}
}

func NewServiceFailure(m string) *PinErr { return newPinErr(ErrCodeServiceFailure, m) }

func NewNotFound(m string) *PinErr { return newPinErr(ErrCodeNotFound, m) }

func NewBadInput(m string) *PinErr { return newPinErr(ErrCodeAPIBadRequest, m) }

func NewExisted(m string) *PinErr { return newPinErr(ErrCodeExisted, m) }

func NewUnauthorized(m string) *PinErr { return newPinErr(ErrCodeUnauthorized, m) }

func NewForbidden(m string) *PinErr { return newPinErr(ErrCodeForbidden, m) }

func NewEmptyContent(m string) *PinErr { return newPinErr(ErrCodeEmptyContent, m) }

func NewMalformedURL(m string) *PinErr { return newPinErr(ErrCodeMalformedURL, m) }

// NewPersistence marks a storage-layer rejection. It is surfaced to callers as is and never retried.
func NewPersistence(m string) *PinErr { return newPinErr(ErrCodePersistence, m) }

func NewOversized(m string) *PinErr { return newPinErr(ErrCodeOversized, m) }

// NewOffPalette marks a sticker or background color outside of the enforced palette
func NewOffPalette(m string) *PinErr { return newPinErr(ErrCodeOffPalette, m) }

func NewNotImplemented() *PinErr { return newPinErr(ErrCodeNotImplemented, "Not implemented") }

// CodeOf returns the ErrCode of the first PinErr found in err's chain, or "" if there is none.
func CodeOf(err error) ErrCode {
	var pe *PinErr
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// Is reports whether err carries a PinErr of given code.
func Is(err error, code ErrCode) bool {
	return CodeOf(err) == code
}

// IsValidation reports whether err is a payload validation failure.
func (e *PinErr) IsValidation() bool {
	switch e.Code {
	case ErrCodeEmptyContent, ErrCodeMalformedURL, ErrCodeOffPalette, ErrCodeAPIBadRequest:
		return true
	}
	return false
}

// StatusCode returns the http response status code associated with the PinErr value
func (e *PinErr) StatusCode() int {
	switch e.Code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeAPIBadRequest, ErrCodeEmptyContent, ErrCodeMalformedURL, ErrCodeOffPalette:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden, ErrCodeExisted:
		return http.StatusForbidden
	case ErrCodeOversized:
		return http.StatusRequestEntityTooLarge
	case ErrCodeNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
