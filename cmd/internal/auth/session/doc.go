// Package session owns the client-side session state machine.
//
// The Controller reconciles the two credential tiers at boot (hydration),
// performs interactive login and logout, and refreshes the bearer token in the
// background. It is the only writer of Session state; everything else reads
// snapshots or subscribes to transitions.
//
// Network failures are absorbed into state transitions or returned as typed
// errors. Nothing here panics or leaves a half-valid session in storage.
package session
