package session

import (
	"context"

	"tasklane/cmd/internal/auth/claims"
)

// route decides the post-login destination. A remembered project is trusted
// only after the access verifier confirms it for the new session; a stale or
// denied pointer is forgotten so the next login does not repeat the check.
func (c *Controller) route(ctx context.Context, id claims.Identity) Destination {
	if id.IsAdmin() {
		return Destination{Kind: DestinationAdmin}
	}

	subject := id.Subject()
	projectID, legacy, err := c.store.LastProject(ctx, subject)
	if err != nil {
		c.log.Warn("session.route.pointer_read_failed", "user", subject, "err", err)
		return Destination{Kind: DestinationProjectSelection}
	}
	if projectID == "" {
		return Destination{Kind: DestinationProjectSelection}
	}

	ok := false
	if c.access != nil {
		ok, err = c.access.CanAccessProject(ctx, c.RequestContext(), projectID)
		if err != nil {
			c.log.Warn("session.route.verify_failed", "user", subject, "project_id", projectID, "err", err)
			ok = false
		}
	}

	if !ok {
		c.forgetPointers(ctx, subject, legacy)
		c.log.Info("session.route.project_dropped", "user", subject, "project_id", projectID, "legacy", legacy)
		return Destination{Kind: DestinationProjectSelection}
	}

	if legacy && subject != "" {
		// Adopt the legacy pointer for this user and retire the shared one.
		if err := c.store.RememberProject(ctx, subject, projectID); err != nil {
			c.log.Warn("session.route.adopt_failed", "user", subject, "project_id", projectID, "err", err)
		} else if err := c.store.ForgetLegacyProject(ctx); err != nil {
			c.log.Warn("session.route.forget_legacy_failed", "err", err)
		}
	}
	return Destination{Kind: DestinationProject, ProjectID: projectID}
}

func (c *Controller) forgetPointers(ctx context.Context, subject string, legacy bool) {
	if err := c.store.ForgetProject(ctx, subject); err != nil {
		c.log.Warn("session.route.forget_failed", "user", subject, "err", err)
	}
	if legacy {
		if err := c.store.ForgetLegacyProject(ctx); err != nil {
			c.log.Warn("session.route.forget_legacy_failed", "err", err)
		}
	}
}
