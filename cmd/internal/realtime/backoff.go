package realtime

import "time"

// Reconnect delays as multiples of the configured base: immediate, short, medium, long.
var backoffSteps = []time.Duration{0, 1, 5, 15}

// backoffDelay returns the delay before the n-th consecutive attempt (0-based).
// Attempts past the schedule reuse the last step.
func backoffDelay(n int, base time.Duration) time.Duration {
	if n < 0 {
		n = 0
	}
	if n >= len(backoffSteps) {
		n = len(backoffSteps) - 1
	}
	return backoffSteps[n] * base
}
