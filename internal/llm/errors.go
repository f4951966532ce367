package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/nugget/steward/internal/httpkit"
)

// ErrMissingCredential marks a provider that cannot be constructed
// because its API key is absent.
var ErrMissingCredential = errors.New("missing credential")

// ErrUnknownProvider is returned for provider names outside the table.
var ErrUnknownProvider = errors.New("unknown provider")

// ConfigError reports a provider that cannot be built from the current
// configuration. It is raised at construction, never mid-conversation.
type ConfigError struct {
	Provider string
	Detail   string
	Err      error
}

func (e *ConfigError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// RequestError wraps a failed backend call. StatusCode is zero for
// transport-level failures.
type RequestError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s request failed (HTTP %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Retryable reports whether the same request may succeed later.
// Authentication failures and malformed requests never are.
func (e *RequestError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return !errors.Is(e.Err, context.Canceled)
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// requestError builds a RequestError, pulling a status code out of an
// httpkit.StatusError when present.
func requestError(provider string, status int, err error) *RequestError {
	var se *httpkit.StatusError
	if status == 0 && errors.As(err, &se) {
		status = se.StatusCode
	}
	return &RequestError{Provider: provider, StatusCode: status, Err: err}
}
