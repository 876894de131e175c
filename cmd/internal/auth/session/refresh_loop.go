package session

import (
	"context"
	"errors"
	"time"

	"tasklane/cmd/internal/auth/claims"
)

// RunRefreshLoop refreshes the bearer token ahead of its exp until ctx is done.
// While the session is not Authenticated the loop waits for the next transition.
// Tokens without exp are never refreshed proactively.
func (c *Controller) RunRefreshLoop(ctx context.Context) {
	var lastAttempt time.Time

	for {
		sess, changed := c.changes()

		var timer <-chan time.Time
		var t *time.Timer
		if sess.Status == StatusAuthenticated {
			if exp, ok := claims.ExpiresAt(sess.BearerToken); ok {
				delay := exp.Sub(c.now()) - c.cfg.RefreshLead
				if !lastAttempt.IsZero() {
					if floor := c.cfg.MinRefreshGap - c.now().Sub(lastAttempt); delay < floor {
						delay = floor
					}
				}
				if delay < 0 {
					delay = 0
				}
				t = time.NewTimer(delay)
				timer = t.C
			}
		}

		select {
		case <-ctx.Done():
			if t != nil {
				t.Stop()
			}
			return
		case <-changed:
			if t != nil {
				t.Stop()
			}
		case <-timer:
			lastAttempt = c.now()
			err := c.Refresh(ctx)
			switch {
			case err == nil:
			case errors.Is(err, ErrClosed):
				return
			case errors.Is(err, ErrStale), errors.Is(err, ErrNotAuthenticated), errors.Is(err, context.Canceled):
			default:
				c.log.Warn("session.refresh_loop.failed", "err", err)
			}
		}
	}
}
