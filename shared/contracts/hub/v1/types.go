package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Subprotocol is the WebSocket subprotocol both sides must negotiate.
const Subprotocol = "tasklane.hub.v1"

// Type constants (wire-stable).
const (
	// TypeInvocation calls a hub method (client -> hub).
	TypeInvocation = "invocation"
	// TypeCompletion answers an invocation; ID matches the invocation (hub -> client).
	TypeCompletion = "completion"
	// TypeEvent pushes a named event; Target is the event name (hub -> client).
	TypeEvent = "event"
	// TypePing is an application-level keepalive (either direction).
	TypePing = "ping"
	// TypeClose announces that the hub is closing the connection (hub -> client).
	TypeClose = "close"
)

// Hub methods.
const (
	MethodJoinGroup  = "JoinGroup"
	MethodLeaveGroup = "LeaveGroup"
)

// Events pushed by the hub.
const (
	EventReceiveNotification = "ReceiveNotification"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V      string            `json:"v"`
	Type   string            `json:"type"`
	ID     string            `json:"id,omitempty"`
	Target string            `json:"target,omitempty"`
	Args   []json.RawMessage `json:"args,omitempty"`
	Error  *ErrorPayload     `json:"error,omitempty"`
	TS     time.Time         `json:"ts,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}

	switch e.Type {
	case TypeInvocation:
		if e.ID == "" || e.Target == "" {
			return errors.New("invocation requires id and target")
		}
	case TypeCompletion:
		if e.ID == "" {
			return errors.New("completion requires id")
		}
	case TypeEvent:
		if e.Target == "" {
			return errors.New("event requires target")
		}
	case TypePing, TypeClose:
	case "":
		return errors.New("missing field: type")
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
	return nil
}

// ErrorPayload is carried by failed completions and close envelopes.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Notification is the single argument of ReceiveNotification.
type Notification struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id,omitempty"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EncodeArgs marshals each argument into its own raw JSON value.
func EncodeArgs(args ...any) ([]json.RawMessage, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make([]json.RawMessage, 0, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		out = append(out, b)
	}
	return out, nil
}
