package shiprocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var ErrNotConfigured = errors.New("shiprocket: email and password are not configured")

type Kind int

const (
	KindUpstream Kind = iota
	KindInvalid
	KindAuth
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindAuth:
		return "auth"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "upstream"
	}
}

// APIError is a non-2xx Shiprocket response.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	switch e.Kind() {
	case KindInvalid:
		return fmt.Sprintf("shiprocket %s: not found or invalid (%d): %s", e.Op, e.StatusCode, e.Message)
	case KindAuth:
		return fmt.Sprintf("shiprocket %s: authentication failed (%d)", e.Op, e.StatusCode)
	case KindRateLimited:
		return fmt.Sprintf("shiprocket %s: too many requests", e.Op)
	default:
		return fmt.Sprintf("shiprocket %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	}
}

func (e *APIError) Kind() Kind {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return KindInvalid
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindUpstream
	}
}

// Temporary reports whether the request may succeed if retried.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500
}

// KindOf classifies err; errors that are not *APIError are upstream.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind()
	}
	return KindUpstream
}

// IsTransient reports whether err is a timeout, a dropped connection or a
// 5xx response.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
