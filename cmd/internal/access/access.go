// Package access re-verifies a user's read access to a project.
//
// The session controller calls a Verifier before routing a user back to their
// last active project, so a revoked membership never reopens silently.
package access

import (
	"context"

	authapi "tasklane/cmd/internal/auth/api"
)

// Verifier answers whether the caller in rc can read projectID.
// A definitive "no" is (false, nil); errors mean the answer is unknown.
type Verifier interface {
	CanAccessProject(ctx context.Context, rc authapi.RequestContext, projectID string) (bool, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, rc authapi.RequestContext, projectID string) (bool, error)

// CanAccessProject implements Verifier.
func (f VerifierFunc) CanAccessProject(ctx context.Context, rc authapi.RequestContext, projectID string) (bool, error) {
	return f(ctx, rc, projectID)
}
