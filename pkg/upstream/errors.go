package upstream

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth is returned when the resolver's own upstream login fails:
	// rejected credentials, unreachable upstream, or a malformed login
	// response.
	ErrAuth = errors.New("upstream authentication failed")

	// ErrCredentialFetch is returned when a service-account lookup fails
	// after the retry policy is exhausted, or when the response body is
	// missing required fields.
	ErrCredentialFetch = errors.New("service account fetch failed")
)

// HTTPError represents a non-2xx upstream response with status code, URL,
// and a body preview.
type HTTPError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is a description of the error (may be a preview of the response body).
	Message string

	// URL is the requested URL.
	URL string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, url, message string) error {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}

// IsHTTPError checks if an error is an HTTPError with the specified status
// code. If statusCode is 0, it matches any HTTPError.
func IsHTTPError(err error, statusCode int) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	if statusCode == 0 {
		return true
	}
	return httpErr.StatusCode == statusCode
}
