package realtime

import (
	"sync"
	"time"
)

// invocationLimiter admits at most limit outbound invocations in any window.
// stamps is a ring of the most recent admissions; when full, next is the oldest.
type invocationLimiter struct {
	mu     sync.Mutex
	stamps []time.Time
	next   int
	count  int
	window time.Duration
}

func newInvocationLimiter(limit int, window time.Duration) *invocationLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &invocationLimiter{stamps: make([]time.Time, limit), window: window}
}

// admit records an invocation at now, or reports how long until one would fit.
func (l *invocationLimiter) admit(now time.Time) (wait time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == len(l.stamps) {
		if free := l.stamps[l.next].Add(l.window); now.Before(free) {
			return free.Sub(now), false
		}
	} else {
		l.count++
	}
	l.stamps[l.next] = now
	l.next = (l.next + 1) % len(l.stamps)
	return 0, true
}
