// Package realtime manages the client side of the hub connection.
//
// A Manager owns one WebSocket to the hub for the lifetime of a session. It
// connects on demand, reconnects on a fixed escalating schedule, and degrades
// to Disabled after too many consecutive failed reconnects so a dead hub never turns
// into a tight retry loop. Group membership is per connection and is not
// replayed after a reconnect. Inbound events are fanned out by a Dispatcher
// whose registrations do not depend on connection state.
package realtime
