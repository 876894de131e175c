package realtime

import "time"

// Frame and argument caps for the hub connection.
const (
	maxFrameBytes     = 64 << 10
	maxInvocationArgs = 16
)

// Keepalive defaults; Config can override the interval and timeout.
const (
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second
	maxPingFailures   = 2
)

// Outbound invocations admitted per connection within rateLimitWindow.
const (
	rateLimitEvents = 60
	rateLimitWindow = 10 * time.Second
)

// How long Close waits for the read and keepalive loops to exit.
const closeGrace = 2 * time.Second
