package authapi

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport wraps network-level failures (DNS, refused, timeout).
	ErrTransport = errors.New("auth api unreachable")

	// ErrInvalidCredentials is matched by 401 responses to login.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMalformedResponse is returned when a 2xx body lacks required fields.
	ErrMalformedResponse = errors.New("malformed auth api response")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("auth api: status %d", e.Status)
	}
	return fmt.Sprintf("auth api: status %d: %s", e.Status, e.Code)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrInvalidCredentials
	}
	return nil
}

// UserMessage returns text safe to show an end user.
func (e *APIError) UserMessage() string {
	switch {
	case e.Status == http.StatusUnauthorized:
		return "Invalid username or password."
	case e.Status == http.StatusTooManyRequests:
		return "Too many attempts. Please wait and try again."
	case e.Status == http.StatusForbidden && e.Message != "":
		return e.Message
	case e.Status >= 500:
		return "The server is unavailable. Please try again later."
	case e.Message != "":
		return e.Message
	default:
		return "Sign-in failed."
	}
}

// UserMessage maps any client error to user-facing text.
func UserMessage(err error) string {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.UserMessage()
	}
	if errors.Is(err, ErrTransport) {
		return "Unable to reach the server. Check your connection and try again."
	}
	return "Sign-in failed."
}
