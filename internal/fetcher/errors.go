package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorType represents the category of error that occurred during a fetch operation
type ErrorType string

const (
	// ErrorTypeNetwork indicates a network-level error (connection refused, DNS, open circuit, etc.)
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeTimeout indicates the request did not finish within its budget
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeHTTPStatus indicates the upstream answered with a non-2xx status
	ErrorTypeHTTPStatus ErrorType = "http_status"
	// ErrorTypeMalformedBody indicates the response was received but is not the expected JSON
	ErrorTypeMalformedBody ErrorType = "malformed_body"
)

// FetchError represents a structured error from a fetch operation
type FetchError struct {
	Type       ErrorType
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Unreachable reports whether the upstream could not be reached at all.
func (e *FetchError) Unreachable() bool {
	return e.Type == ErrorTypeNetwork || e.Type == ErrorTypeTimeout
}

// NewNetworkError creates a network error
func NewNetworkError(cause error) *FetchError {
	return &FetchError{
		Type:    ErrorTypeNetwork,
		Message: "upstream unreachable",
		Cause:   cause,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(cause error) *FetchError {
	return &FetchError{
		Type:    ErrorTypeTimeout,
		Message: "upstream request timed out",
		Cause:   cause,
	}
}

// NewStatusError creates an error for a non-2xx upstream answer.
// detail is an optional excerpt of the response body.
func NewStatusError(statusCode int, detail string) *FetchError {
	message := http.StatusText(statusCode)
	if message == "" {
		message = "unexpected status"
	}
	if detail != "" {
		message = fmt.Sprintf("%s: %s", message, detail)
	}
	return &FetchError{
		Type:       ErrorTypeHTTPStatus,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewMalformedBodyError creates an error for a body that is not the expected JSON
func NewMalformedBodyError(message string, cause error) *FetchError {
	return &FetchError{
		Type:    ErrorTypeMalformedBody,
		Message: message,
		Cause:   cause,
	}
}

// ClassifyTransportError maps an error returned by the HTTP client to a FetchError.
func ClassifyTransportError(err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError(err)
	}

	return NewNetworkError(err)
}
