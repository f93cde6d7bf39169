// Package dErrors provides coded domain errors and their HTTP translation.
//
// Services return these for business-rule failures; infrastructure layers
// return pkg/platform/sentinel errors instead and services translate.
package dErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the class of a domain error.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeRateLimited  Code = "rate_limited"
	CodeInternal     Code = "internal_error"

	// CodeAccountSuspended marks an authoritative-lookup rejection for an
	// inactive account. Collapses to 401 at the HTTP boundary but stays
	// distinguishable in logs and for callers that propagate suspension.
	CodeAccountSuspended Code = "account_suspended"

	// CodeUnavailable marks an authority/store timeout. Callers decide
	// fail-open vs fail-closed; the HTTP layer fails closed.
	CodeUnavailable Code = "unavailable"

	// CodeFeatureDisabled marks an organization feature-flag rejection.
	// Never conflated with authentication failure: it maps to 403 with its
	// own code so clients can render a different state.
	CodeFeatureDisabled Code = "feature_disabled"
)

// Error is a domain error with a classification code and a human message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap annotates err with a domain code and message, preserving the chain.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost domain error, or CodeInternal
// when the error is not a domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain code to an HTTP status.
// Authentication-class failures (unauthorized, suspended, authority
// unavailable) all collapse to 401 so a probing client learns nothing.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeAccountSuspended, CodeUnavailable:
		return http.StatusUnauthorized
	case CodeForbidden, CodeFeatureDisabled:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
