package connector

import (
	"errors"
	"fmt"
)

// ErrUnsupportedConnectionType marks a connection-type string no
// registered connector serves. This is a configuration error, not a
// retryable condition.
var ErrUnsupportedConnectionType = errors.New("unsupported connection type")

// AuthenticationError means the upstream rejected the credentials or
// returned a response missing the expected identity fields. The upstream
// status and message are kept for orchestrator decisions; user-facing
// surfaces must not echo them.
type AuthenticationError struct {
	Platform string
	Status   int
	Message  string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s authentication failed (status %d): %s", e.Platform, e.Status, e.Message)
}

// UpstreamError means the platform could not be reached or answered with
// a server error. Transient; retry happens by rescheduling, never inside
// the sync attempt.
type UpstreamError struct {
	Platform string
	Status   int
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s upstream unavailable: %v", e.Platform, e.Err)
	}
	return fmt.Sprintf("%s upstream unavailable (status %d)", e.Platform, e.Status)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
