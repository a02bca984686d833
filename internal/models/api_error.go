package models

import (
	"fmt"
	"net/http"
)

// ErrorCode is a string type for consistent error codes.
type ErrorCode string

// Predefined error codes returned by the HTTP API.
const (
	// Generic
	ErrorCodeInternalServerError ErrorCode = "internal_server_error"
	ErrorCodeServiceUnavailable  ErrorCode = "service_unavailable"
	ErrorCodeMethodNotAllowed    ErrorCode = "method_not_allowed"

	// Authentication & Authorization
	ErrorCodeUnauthorized ErrorCode = "unauthorized"
	ErrorCodeInvalidToken ErrorCode = "invalid_token"

	// Validation
	ErrorCodeMissingParameter ErrorCode = "missing_parameter"
	ErrorCodeInvalidFormat    ErrorCode = "invalid_format"
	ErrorCodeUnknownAttribute ErrorCode = "unknown_attribute"
)

type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`           // Human-readable error message
	Details    any       `json:"details,omitempty"` // Optional: Additional details
	StatusCode int       `json:"-"`                 // HTTP status code
}

// Error makes APIError implement the error interface.
func (e APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewAPIError is a constructor for APIError.
func NewAPIError(code ErrorCode, message string, details any, statusCode int) APIError {
	return APIError{
		Code:       code,
		Message:    message,
		Details:    details,
		StatusCode: statusCode,
	}
}

// InternalError is the generic error sent when a storage or transport
// failure happens behind an API call. The cause is logged, never returned.
func InternalError() APIError {
	return NewAPIError(ErrorCodeInternalServerError, "Internal server error.", nil, http.StatusInternalServerError)
}
