package firefly

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized is wrapped by errors for 401 and 403 responses.
var ErrUnauthorized = errors.New("firefly: credentials rejected")

// HTTPError captures an unexpected status code and the response body.
type HTTPError struct {
	StatusCode int
	Method     string
	Path       string
	Body       []byte
}

func (e *HTTPError) Error() string {
	body := string(e.Body)
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("%s %s: unexpected status code %d: %s", e.Method, e.Path, e.StatusCode, body)
}

// Unwrap lets errors.Is(err, ErrUnauthorized) match auth failures.
func (e *HTTPError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}

// Retryable reports whether repeating the request may succeed.
func (e *HTTPError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
