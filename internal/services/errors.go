package services

import (
	"fmt"
	"net/http"

	"github.com/desertthunder/splitify/internal/shared"
)

// APIError is a non-success HTTP response from an external service.
type APIError struct {
	Service string
	Status  int
	Body    string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s API error: status %d", e.Service, e.Status)
	}
	return fmt.Sprintf("%s API error: status %d: %s", e.Service, e.Status, e.Body)
}

// Temporary reports whether the request may succeed if retried.
func (e *APIError) Temporary() bool {
	switch e.Status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable:
		return true
	}
	return false
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusTooManyRequests:
		return shared.ErrRateLimited
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return shared.ErrTransient
	case http.StatusUnauthorized:
		return shared.ErrNotAuthenticated
	}
	return shared.ErrAPIRequest
}
