package adapter

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork marks a transient transport-class failure (timeout,
	// connection error, 5xx). The only retryable class: mutations that hit
	// it fall back to the offline queue.
	ErrNetwork = errors.New("network failure")

	// ErrOwnership marks an authorization/ownership rejection (row not
	// owned by the caller, invalid credentials). Never retried or queued.
	ErrOwnership = errors.New("row not owned by caller")

	// ErrValidation marks a payload the backend rejected as malformed or
	// constraint-violating. Never retried or queued.
	ErrValidation = errors.New("payload rejected by backend")
)

// ErrNotFound marks a request against a row the backend does not have.
// Validation-class: errors.Is(err, ErrValidation) also holds, so callers
// that only care about retryability need no extra case.
var ErrNotFound = fmt.Errorf("%w: row not found", ErrValidation)

// Retryable reports whether err belongs to the network failure class and
// should be retried via the offline queue.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}
