package session

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")

	// ErrAlreadyHydrated is returned when Hydrate is called more than once.
	ErrAlreadyHydrated = errors.New("session already hydrated")

	// ErrNotHydrated is returned when login is attempted before boot hydration finished.
	ErrNotHydrated = errors.New("session not hydrated")

	// ErrAlreadyAuthenticated is returned when login is attempted on an authenticated session.
	ErrAlreadyAuthenticated = errors.New("session already authenticated")

	// ErrLoginInProgress is returned when a second login overlaps the first.
	ErrLoginInProgress = errors.New("login already in progress")

	// ErrNotAuthenticated is returned by operations that need an identity.
	ErrNotAuthenticated = errors.New("session not authenticated")

	// ErrRefreshFailed is returned when a background refresh could not renew the session.
	ErrRefreshFailed = errors.New("session refresh failed")

	// ErrStale is returned when a network result arrived for a session that has since been replaced.
	ErrStale = errors.New("stale session result discarded")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session controller closed")
)

// UserError is a login failure carrying a message suitable for the end user.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("login failed: %s", e.Message)
	}
	return fmt.Sprintf("login failed: %s: %v", e.Message, e.Err)
}

func (e *UserError) Unwrap() error { return e.Err }
