package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when the secret key is missing.
	ErrNotConfigured = errors.New("gateway: secret key is not configured")
	// ErrTimeout is returned when the gateway did not answer in time. The
	// caller may retry; nothing was recorded.
	ErrTimeout = errors.New("gateway: request timed out")

	ErrSignatureMissing = errors.New("gateway: webhook signature missing")
	ErrSignatureInvalid = errors.New("gateway: webhook signature invalid")
	ErrMalformedPayload = errors.New("gateway: malformed webhook payload")
)

// APIError is a non-success answer from the gateway.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway: status %d: %s", e.StatusCode, e.Message)
}
