// Package errors defines unified error types for the inference gateway.
// Every failure that crosses a component boundary is mapped to one of these
// kinds so the serving layer can pick a status code without inspecting
// component internals.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// GatewayError represents a standardized error from the serving core.
// It contains all necessary information for error handling, logging, and client response.
type GatewayError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Kind       string `json:"kind"`
	Component  string `json:"component,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Retryable  bool   `json:"-"`
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("[%s] %s (component=%s, code=%d)",
			e.Kind, e.Message, e.Component, e.StatusCode)
	}
	return fmt.Sprintf("[%s] %s (code=%d)", e.Kind, e.Message, e.StatusCode)
}

// HTTPStatusCode returns the appropriate HTTP status code for the error.
func (e *GatewayError) HTTPStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// WithRequestID returns a copy of the error tagged with the request ID.
func (e *GatewayError) WithRequestID(id string) *GatewayError {
	clone := *e
	clone.RequestID = id
	return &clone
}

// Error kinds, one per failure class the core distinguishes.
const (
	KindInputInvalid     = "input_invalid"
	KindAuthDenied       = "auth_denied"
	KindGuardrailBlocked = "guardrail_blocked"
	KindQueueTimeout     = "queue_timeout"
	KindInferenceFailed  = "inference_failed"
	KindEmbeddingFailed  = "embedding_failed"
	KindSnapshotIO       = "snapshot_io_failed"
	KindUnsupportedMode  = "unsupported_mode"
)

// NewInputInvalidError creates an invalid request error (400).
func NewInputInvalidError(component, message string) *GatewayError {
	return &GatewayError{
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Kind:       KindInputInvalid,
		Component:  component,
		Retryable:  false,
	}
}

// NewAuthDeniedError creates an authentication/authorization error.
// Use 401 for missing or unverifiable credentials and 403 for valid
// credentials that lack access.
func NewAuthDeniedError(statusCode int, message string) *GatewayError {
	if statusCode != http.StatusUnauthorized && statusCode != http.StatusForbidden {
		statusCode = http.StatusUnauthorized
	}
	return &GatewayError{
		StatusCode: statusCode,
		Message:    message,
		Kind:       KindAuthDenied,
		Component:  "auth",
		Retryable:  false,
	}
}

// NewGuardrailBlockedError creates a guardrail block (403). ThreatType is
// carried in the message; structured details travel on the generate result.
func NewGuardrailBlockedError(threatType, message string) *GatewayError {
	return &GatewayError{
		StatusCode: http.StatusForbidden,
		Message:    fmt.Sprintf("%s: %s", threatType, message),
		Kind:       KindGuardrailBlocked,
		Component:  "guardrail",
		Retryable:  false,
	}
}

// NewQueueTimeoutError creates a request deadline error (504): the request
// expired before the scheduler dispatched it.
func NewQueueTimeoutError(component, message string) *GatewayError {
	return &GatewayError{
		StatusCode: http.StatusGatewayTimeout,
		Message:    message,
		Kind:       KindQueueTimeout,
		Component:  component,
		Retryable:  true,
	}
}

// NewInferenceFailedError creates an inference failure (500).
func NewInferenceFailedError(component, message string) *GatewayError {
	return &GatewayError{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
		Kind:       KindInferenceFailed,
		Component:  component,
		Retryable:  false,
	}
}

// NewEmbeddingFailedError creates a soft embedding failure. Callers degrade
// to a cache miss or drop the chunk; the error never reaches a client.
func NewEmbeddingFailedError(component, message string) *GatewayError {
	return &GatewayError{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
		Kind:       KindEmbeddingFailed,
		Component:  component,
		Retryable:  true,
	}
}

// NewSnapshotIOError creates a soft snapshot persistence failure. State in
// RAM remains the truth; callers log and continue.
func NewSnapshotIOError(component, message string) *GatewayError {
	return &GatewayError{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
		Kind:       KindSnapshotIO,
		Component:  component,
		Retryable:  true,
	}
}

// NewUnsupportedModeError creates an unsupported mode error (501).
func NewUnsupportedModeError(component, message string) *GatewayError {
	return &GatewayError{
		StatusCode: http.StatusNotImplemented,
		Message:    message,
		Kind:       KindUnsupportedMode,
		Component:  component,
		Retryable:  false,
	}
}

// AsGatewayError unwraps err to a *GatewayError, or wraps it as an internal
// inference failure when it is any other error.
func AsGatewayError(err error) *GatewayError {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return NewInferenceFailedError("", err.Error())
}

// IsSoft reports whether the error kind is recovered locally (logged and
// degraded) rather than surfaced to the caller.
func IsSoft(err error) bool {
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		return false
	}
	return gwErr.Kind == KindEmbeddingFailed || gwErr.Kind == KindSnapshotIO
}
