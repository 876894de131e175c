// Package v1 defines the Tasklane Hub Protocol v1 contract.
//
// The hub is the server-side real-time endpoint. Clients open one WebSocket
// per session, invoke hub methods (group membership) and receive pushed
// events. This package is shared between the client and test hubs to keep the
// wire protocol authoritative.
package v1
