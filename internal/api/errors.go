package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// TimeoutError is returned when a request exceeds its deadline.
type TimeoutError struct {
	Method   string
	Endpoint string
	After    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %v (%s %s); check your internet connection", e.After, e.Method, e.Endpoint)
}

// NetworkError is returned when the service could not be reached at all
// (no connectivity, DNS or TLS failure).
type NetworkError struct {
	Method   string
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error (%s %s): %v", e.Method, e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is returned when the service answered with a non-2xx status or
// with an envelope whose success flag is false.
type HTTPError struct {
	Status  int
	Message string
	Body    string
}

func (e *HTTPError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Body
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("API error (HTTP %d): %s", e.Status, msg)
}

// ValidationError is a local, pre-flight rejection of caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsRetryable reports whether err is worth retrying later (timeouts,
// network failures, server errors, throttling) as opposed to an error the
// caller must fix.
func IsRetryable(err error) bool {
	var timeoutErr *TimeoutError
	var netErr *NetworkError
	var httpErr *HTTPError
	switch {
	case errors.As(err, &timeoutErr), errors.As(err, &netErr):
		return true
	case errors.As(err, &httpErr):
		return httpErr.Status >= 500 || httpErr.Status == http.StatusTooManyRequests
	default:
		return false
	}
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}
