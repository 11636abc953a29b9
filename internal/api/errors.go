// Package api provides error types for Mist API responses.
package api

import (
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
)

// Sentinel errors matched by errors.Is against an *APIError.
var (
	// ErrUnauthorized indicates a missing, expired or under-privileged token (401/403).
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound indicates the org, site or device does not exist (404).
	ErrNotFound = errors.New("not found")
	// ErrRateLimited indicates the hourly request budget is spent (429).
	ErrRateLimited = errors.New("rate limited")
	// ErrEmptyResponse indicates a 200 response whose body was JSON null.
	ErrEmptyResponse = errors.New("empty response body")
)

// maxErrorBody caps how much of a failed response body is kept in the error.
const maxErrorBody = 4096

// APIError describes a non-success HTTP response.
type APIError struct {
	Op         string // e.g. "get site device"
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s failed: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Unwrap maps the status code to the matching sentinel error.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case nethttp.StatusUnauthorized, nethttp.StatusForbidden:
		return ErrUnauthorized
	case nethttp.StatusNotFound:
		return ErrNotFound
	case nethttp.StatusTooManyRequests:
		return ErrRateLimited
	}
	return nil
}

// newAPIError reads (a bounded prefix of) the response body into an APIError.
func newAPIError(op string, resp *nethttp.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
	if resp.Request != nil {
		apiErr.Method = resp.Request.Method
		apiErr.Path = resp.Request.URL.Path
	}
	return apiErr
}

// IsRateLimited reports whether err is a 429 from the API.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnauthorized reports whether err is a 401 or 403 from the API.
//
// Usage:
//
//	if _, err := client.GetSelf(ctx); api.IsUnauthorized(err) {
//	    // prompt for a new token
//	}
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
