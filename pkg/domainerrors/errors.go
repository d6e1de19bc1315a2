// Package domainerrors defines the coded errors that cross package boundaries.
//
// Services return these so transport layers can translate them into HTTP
// responses without inspecting error strings. Infrastructure facts (not found,
// conflict) use pkg/platform/sentinel instead; services wrap sentinels into
// domain errors at the boundary.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the violated constraint. Codes are part of the wire
// contract: handlers emit them verbatim in the error envelope.
type Code string

const (
	CodeInvalidInput      Code = "invalid_input"
	CodeUnsupportedScheme Code = "unsupported_scheme"
	CodeMalformedEncoding Code = "malformed_encoding"
	CodeInvalidPublicKey  Code = "invalid_public_key"
	CodeUnknownIdentity   Code = "unknown_identity"
	CodeNotFound          Code = "not_found"
	CodeUnauthorized      Code = "unauthorized"
	CodeSyncTimeout       Code = "sync_timeout"
	CodeInternal          Code = "internal"
)

// Error carries a code plus an operator-facing message. The message is for
// logs; only the code is returned to clients.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a domain error with the given code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the code from err, or CodeInternal when err is not a
// domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code onto the HTTP status the envelope uses.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeUnsupportedScheme, CodeMalformedEncoding, CodeInvalidPublicKey:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound, CodeUnknownIdentity:
		return http.StatusNotFound
	case CodeSyncTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
