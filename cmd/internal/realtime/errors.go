package realtime

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")

	// ErrConnectionUnavailable is returned by Invoke when the manager is disabled
	// or not connected. It signals a caller bug, not a transient network condition.
	ErrConnectionUnavailable = errors.New("hub connection not available")

	// ErrInvocationFailed wraps a failed hub invocation.
	ErrInvocationFailed = errors.New("hub invocation failed")

	// ErrConnectionClosed is returned for invocations cut short by a closed socket.
	ErrConnectionClosed = errors.New("hub connection closed")

	// ErrRateLimited is returned when outbound invocations exceed the per-connection limit.
	ErrRateLimited = errors.New("hub invocation rate limited")

	// ErrSubprotocol is returned when the hub does not negotiate the expected subprotocol.
	ErrSubprotocol = errors.New("hub subprotocol not negotiated")
)

// HubError is an error reported by the hub in a completion or close envelope.
type HubError struct {
	Code    string
	Message string
}

func (e *HubError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("hub error: %s", e.Code)
	}
	return fmt.Sprintf("hub error: %s: %s", e.Code, e.Message)
}
