package claims

import (
	"errors"
	"fmt"
)

// ErrDecode is the sentinel matched by every decode failure.
var ErrDecode = errors.New("claims decode failed")

// DecodeError reports a structurally invalid token.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", ErrDecode, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %v", ErrDecode, e.Reason, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDecode}
	}
	return []error{ErrDecode, e.Err}
}
