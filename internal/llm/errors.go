package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
)

// TransportError is a network-level failure: connection errors, timeouts
// and server-side 5xx responses.
type TransportError struct {
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport error (HTTP %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error   { return e.Err }
func (e *TransportError) Retryable() bool { return true }

// AuthError means the credential was rejected.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (HTTP %d): %v", e.StatusCode, e.Err)
}

func (e *AuthError) Unwrap() error   { return e.Err }
func (e *AuthError) Retryable() bool { return true }

// QuotaError means the endpoint rate limited the call.
type QuotaError struct {
	Err error
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded (HTTP 429): %v", e.Err)
}

func (e *QuotaError) Unwrap() error   { return e.Err }
func (e *QuotaError) Retryable() bool { return true }

// Kind names the error category for user-facing messages.
func Kind(err error) string {
	var (
		transport *TransportError
		auth      *AuthError
		quota     *QuotaError
	)
	switch {
	case errors.As(err, &auth):
		return "AuthError"
	case errors.As(err, &quota):
		return "QuotaError"
	case errors.As(err, &transport):
		return "TransportError"
	}
	return ""
}

// Classify maps an error from the OpenAI-compatible SDK onto the client's
// error kinds. Caller cancellation is returned unchanged; other 4xx
// responses are returned unchanged and are not retried.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch code := apiErr.StatusCode; {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return &AuthError{StatusCode: code, Err: err}
		case code == http.StatusTooManyRequests:
			return &QuotaError{Err: err}
		case code >= 500:
			return &TransportError{StatusCode: code, Err: err}
		case code == http.StatusRequestTimeout:
			return &TransportError{StatusCode: code, Err: err}
		}
		return err
	}

	// No API response: dial failures, resets, per-call timeouts.
	return &TransportError{Err: err}
}
