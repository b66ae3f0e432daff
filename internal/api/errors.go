package api

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError is a network or HTTP failure talking to the backend.
// Either StatusCode/Status are set (the server answered with a non-2xx
// status) or Err holds the underlying I/O error.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s %s: %s: %s", e.Method, e.Path, e.Status, e.Body)
	}
	return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Status)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the same request may succeed.
func (e *TransportError) Temporary() bool {
	if e.Err != nil {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.StatusCode == http.StatusNotFound
}
