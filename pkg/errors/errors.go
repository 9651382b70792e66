// Package errors defines the failure taxonomy shared by every layer of the
// service. Repositories and services classify failures with a Code; the HTTP
// edge renders the code through MetadataFor and never improvises a status.
package errors

import (
	stderrors "errors"
	"net/http"
)

// Code names a failure class. Codes appear verbatim in response bodies, so
// they are part of the wire contract.
type Code string

const (
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeStateConflict   Code = "STATE_CONFLICT"
	CodeIdempotency     Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit       Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal        Code = "INTERNAL_ERROR"
	CodeGatewayRejected Code = "GATEWAY_REJECTED"
	CodeDependency      Code = "DEPENDENCY_ERROR"
)

// Metadata is the rendering policy for a Code.
type Metadata struct {
	HTTPStatus int
	Retryable  bool

	// PublicMessage is the default body message. ExposeMessage lets the
	// classified error's own message replace it; DetailsAllowed passes the
	// structured details through. Both default to hiding.
	PublicMessage  string
	ExposeMessage  bool
	DetailsAllowed bool
}

// MetadataFor resolves the policy for code. Unknown codes render as internal
// errors rather than leaking whatever produced them.
func MetadataFor(code Code) Metadata {
	switch code {
	case CodeValidation:
		return Metadata{HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", ExposeMessage: true, DetailsAllowed: true}
	case CodeUnauthorized:
		return Metadata{HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required", ExposeMessage: true}
	case CodeForbidden:
		return Metadata{HTTPStatus: http.StatusForbidden, PublicMessage: "access denied", ExposeMessage: true}
	case CodeNotFound:
		return Metadata{HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found", ExposeMessage: true}
	case CodeConflict:
		return Metadata{HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected", ExposeMessage: true, DetailsAllowed: true}
	case CodeStateConflict:
		return Metadata{HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", ExposeMessage: true, DetailsAllowed: true}
	case CodeIdempotency:
		return Metadata{HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true}
	case CodeRateLimit:
		return Metadata{HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded", ExposeMessage: true}
	case CodeGatewayRejected:
		// A gateway refusal needs operator action, not a retry.
		return Metadata{HTTPStatus: http.StatusBadGateway, PublicMessage: "payment gateway rejected the request", ExposeMessage: true}
	case CodeDependency:
		return Metadata{HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true}
	default:
		return Metadata{HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"}
	}
}

// Error pairs a Code with operator-facing context. Its message reaches
// clients only when the code's policy exposes it.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap classifies err under code while keeping it reachable via Unwrap.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.code) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Code is nil-safe; a nil Error classifies as internal.
func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails attaches structured context, typically field-level validation
// findings. Whether it reaches the client is the code policy's call.
func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

// As digs the first classified error out of err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if stderrors.As(err, &typed) {
		return typed
	}
	return nil
}

// HasCode reports whether err's chain classifies under code.
func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
