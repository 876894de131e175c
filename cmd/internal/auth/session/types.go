package session

import (
	"tasklane/cmd/internal/auth/claims"
	"tasklane/cmd/internal/auth/credential"
)

// Status is the session lifecycle state.
type Status string

const (
	// StatusAnonymous means no identity.
	StatusAnonymous Status = "anonymous"
	// StatusHydrating means boot-time reconciliation is running.
	StatusHydrating Status = "hydrating"
	// StatusAuthenticated means an identity and bearer token are held.
	StatusAuthenticated Status = "authenticated"
	// StatusRefreshing means a background refresh is in flight; the identity is kept meanwhile.
	StatusRefreshing Status = "refreshing"
	// StatusExpired means a background refresh failed and the session was torn down.
	StatusExpired Status = "expired"
)

// HasIdentity reports whether a session in this status carries an identity.
func (s Status) HasIdentity() bool {
	return s == StatusAuthenticated || s == StatusRefreshing
}

// Session is an immutable snapshot of the controller's state.
//
// Identity is non-nil iff Status.HasIdentity(); BearerToken is non-empty whenever Identity is.
type Session struct {
	Status       Status
	Identity     *claims.Identity
	BearerToken  string
	RefreshToken string
	Scope        credential.Scope
}

func (s Session) clone() Session {
	if s.Identity != nil {
		id := *s.Identity
		s.Identity = &id
	}
	return s
}

// DestinationKind is where the UI should go after login.
type DestinationKind string

const (
	// DestinationAdmin is the admin surface.
	DestinationAdmin DestinationKind = "admin"
	// DestinationProject is the user's last verified project.
	DestinationProject DestinationKind = "project"
	// DestinationProjectSelection is the safe default.
	DestinationProjectSelection DestinationKind = "project_selection"
)

// Destination is the post-login routing decision.
type Destination struct {
	Kind      DestinationKind `json:"kind"`
	ProjectID string          `json:"project_id,omitempty"`
}
