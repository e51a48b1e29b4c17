// Package core provides the shared types, interfaces and error taxonomy
// for the gateway.
package core

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorType represents the type of error that occurred.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates a client error (400).
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeAuthentication indicates an authentication error (401).
	ErrorTypeAuthentication ErrorType = "authentication_error"
	// ErrorTypeAPI indicates a backend or configuration failure (500).
	ErrorTypeAPI ErrorType = "api_error"
	// ErrorTypeServer is used for errors surfaced inside an already-open
	// SSE stream, where the HTTP status is committed.
	ErrorTypeServer ErrorType = "server_error"
)

// GatewayError is the base error type for all gateway errors.
type GatewayError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	StatusCode int       `json:"-"`
	Provider   string    `json:"-"`
	// Original error for debugging (not exposed to clients).
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface.
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *GatewayError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to the uniform wire body
// {"error": {"message", "type", "details", "request_id"}}.
func (e *GatewayError) ToJSON() map[string]any {
	inner := map[string]any{
		"type":    e.Type,
		"message": e.Message,
	}
	if e.Details != "" {
		inner["details"] = e.Details
	}
	if e.RequestID != "" {
		inner["request_id"] = e.RequestID
	}
	return map[string]any{"error": inner}
}

// NewInvalidRequestError creates a new invalid request error (400).
func NewInvalidRequestError(message string, err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

// NewAuthenticationError creates a new authentication error (401).
func NewAuthenticationError(message string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewAPIError creates a backend invocation error (500). The details string
// is human-readable diagnostic text, not a machine-parseable contract.
func NewAPIError(provider, message, details string, err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeAPI,
		Message:    message,
		Details:    details,
		StatusCode: http.StatusInternalServerError,
		Provider:   provider,
		Err:        err,
	}
}

// NewMissingCredentialsError reports an unconfigured backend credential.
// This is a pre-flight condition, distinct from invocation failures.
func NewMissingCredentialsError(provider, credential string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeAPI,
		Message:    fmt.Sprintf("%s is not configured", credential),
		StatusCode: http.StatusInternalServerError,
		Provider:   provider,
	}
}

// ParseProviderError turns an upstream error body into a GatewayError,
// lifting the upstream message when it is parseable.
func ParseProviderError(provider string, statusCode int, body []byte) *GatewayError {
	var errorResponse struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	details := string(body)
	if err := json.Unmarshal(body, &errorResponse); err == nil && errorResponse.Error.Message != "" {
		details = errorResponse.Error.Message
	}

	return NewAPIError(provider,
		fmt.Sprintf("%s request failed (status %d)", provider, statusCode),
		details, nil)
}
