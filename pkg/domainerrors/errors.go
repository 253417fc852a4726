// Package domainerrors defines the coded error taxonomy shared by every
// component. Codes travel across package and process boundaries; messages are
// for humans and logs. Handlers branch on codes, never on message text.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code identifies a failure class.
type Code string

const (
	CodeBadRequest          Code = "bad_request"
	CodeNoCredentials       Code = "no_credentials"
	CodeMalformedToken      Code = "malformed_token"
	CodeExpiredToken        Code = "expired_token"
	CodeInsufficientRole    Code = "insufficient_role"
	CodeNotFound            Code = "not_found"
	CodeRateLimited         Code = "rate_limited"
	CodeUpstreamUnavailable Code = "upstream_unavailable"
	CodeInternal            Code = "internal"
)

// GatewayError is a coded error with an optional wrapped cause.
type GatewayError struct {
	Code    Code
	Message string
	cause   error
}

func (e *GatewayError) Error() string {
	if e.cause != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.cause.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *GatewayError) Unwrap() error { return e.cause }

// New constructs a coded error.
func New(code Code, message string) *GatewayError {
	return &GatewayError{Code: code, Message: message}
}

// Wrap constructs a coded error around a cause. The cause stays reachable
// through errors.Is/As.
func Wrap(code Code, message string, cause error) *GatewayError {
	return &GatewayError{Code: code, Message: message, cause: cause}
}

// HasCode reports whether any error in err's tree carries the given code.
func HasCode(err error, code Code) bool {
	var ge *GatewayError
	if !errors.As(err, &ge) {
		return false
	}
	return ge.Code == code
}

// CodeOf extracts the code from err, defaulting to CodeInternal for uncoded
// errors so callers always have something to map.
func CodeOf(err error) Code {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the status the public surface returns. The
// admin surface does NOT use this mapping: it answers 404 to every denial.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeNoCredentials, CodeMalformedToken, CodeExpiredToken:
		return http.StatusUnauthorized
	case CodeInsufficientRole:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
