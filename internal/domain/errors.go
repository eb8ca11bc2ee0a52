package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable identifier rendered in the API error envelope.
type ErrorCode string

const (
	CodeLimitExceeded       ErrorCode = ErrorCode(ReasonLimitExceeded)
	CodeGovernanceViolation ErrorCode = ErrorCode(ReasonGovernanceViolation)
	CodeInvalidInput        ErrorCode = "INVALID_INPUT"
	CodeInternalError       ErrorCode = "INTERNAL_ERROR"

	// Transport-only codes, never produced by the decision core.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	CodeAgentBlocked ErrorCode = "AGENT_BLOCKED"
	CodeRateLimited  ErrorCode = "RATE_LIMITED"
)

var ErrConsentIssuance = errors.New("consent issuance failed")

// APIError is an error already shaped for the wire.
type APIError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func NewInvalidInput(message string, details map[string]any) *APIError {
	return &APIError{Code: CodeInvalidInput, Status: http.StatusUnprocessableEntity, Message: message, Details: details}
}

func NewInternalError(message string) *APIError {
	if message == "" {
		message = "Internal server error"
	}
	return &APIError{Code: CodeInternalError, Status: http.StatusInternalServerError, Message: message}
}

func NewUnauthorized(message string) *APIError {
	if message == "" {
		message = "Authentication required"
	}
	return &APIError{Code: CodeUnauthorized, Status: http.StatusUnauthorized, Message: message}
}

// FromDenial maps a guardrail refusal to the wire without touching code, message or details.
func FromDenial(d *DenialError) *APIError {
	return &APIError{
		Code:    ErrorCode(d.Code),
		Status:  http.StatusForbidden,
		Message: d.Message,
		Details: d.Details,
	}
}

// AsAPIError converts any error to an APIError. Unknown errors become INTERNAL_ERROR.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var denial *DenialError
	if errors.As(err, &denial) {
		return FromDenial(denial)
	}
	return NewInternalError("")
}
