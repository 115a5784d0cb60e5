package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during
	// a fetch or retry backoff.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass classifies API failures for retry decisions and observability.
type ErrorClass string

const (
	// ErrorClassAuth represents 401/403 responses. Never retried: they
	// indicate a configuration problem, and looping on them only burns the
	// error budget.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassNotFound represents 404 responses. Retrying cannot change a
	// missing-resource outcome.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassClient represents other 4xx responses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport errors and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassUnexpected represents unparseable bodies or statuses
	// outside the taxonomy.
	ErrorClassUnexpected ErrorClass = "unexpected"
)

// APIError is a Crusoe API failure with the server's message body attached
// when one was available.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Body       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("crusoe %s error (status %d): %s: %s",
			e.ErrorClass, e.StatusCode, e.Message, e.Body)
	}
	return fmt.Sprintf("crusoe %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// classifyStatus maps an HTTP status code to an error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorClassAuth
	case status == http.StatusNotFound:
		return ErrorClassNotFound
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	case status >= 400:
		return ErrorClassClient
	default:
		return ErrorClassUnexpected
	}
}

// shouldRetry reports whether an error class is transient.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassRateLimit, ErrorClassServer, ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// classOf extracts the error class from err, defaulting to network for
// transport-level failures that never produced a response.
func classOf(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	return ErrorClassNetwork
}
