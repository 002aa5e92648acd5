// Package apperr defines the error taxonomy shared by the ledger services and
// the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeInvalidSignature    Code = "INVALID_SIGNATURE"
	CodeNotFound            Code = "NOT_FOUND"
	CodeDuplicateDelivery   Code = "DUPLICATE_DELIVERY"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeProviderUnavailable Code = "PROVIDER_UNAVAILABLE"
	CodeInconsistentState   Code = "INCONSISTENT_STATE"
	CodeInternal            Code = "INTERNAL_ERROR"
)

type Metadata struct {
	HTTPStatus    int
	PublicMessage string
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:          {http.StatusBadRequest, "validation failed"},
	CodeUnauthorized:        {http.StatusUnauthorized, "authentication required"},
	CodeForbidden:           {http.StatusForbidden, "access denied"},
	CodeInvalidSignature:    {http.StatusUnauthorized, "invalid signature"},
	CodeNotFound:            {http.StatusNotFound, "resource not found"},
	CodeDuplicateDelivery:   {http.StatusOK, "already processed"},
	CodeInsufficientBalance: {http.StatusConflict, "insufficient balance"},
	CodeProviderUnavailable: {http.StatusBadGateway, "payment provider unavailable"},
	CodeInconsistentState:   {http.StatusUnprocessableEntity, "state transition disallowed"},
	CodeInternal:            {http.StatusInternalServerError, "internal server error"},
}

func MetadataFor(code Code) Metadata {
	meta, ok := metadataByCode[code]
	if !ok {
		return metadataByCode[CodeInternal]
	}

	return meta
}

type Error struct {
	code    Code
	message string
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code      { return e.code }
func (e *Error) Message() string { return e.message }
func (e *Error) Unwrap() error   { return e.cause }
func (e *Error) HTTPStatus() int { return MetadataFor(e.code).HTTPStatus }

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}

	return fmt.Sprintf("%s: %s", e.code, e.message)
}

// As returns the first *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	return nil
}

// CodeOf reports the taxonomy code for err, CodeInternal when untyped.
func CodeOf(err error) Code {
	typed := As(err)
	if typed == nil {
		return CodeInternal
	}

	return typed.code
}

// Is reports whether err carries code anywhere in its chain.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
