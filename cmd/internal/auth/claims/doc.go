// Package claims decodes the identity embedded in a bearer token.
//
// Decoding is purely local: the payload segment is parsed without signature
// verification because the client holds no verification key. The server stays
// authoritative; the decoded Identity only drives client-side state and routing.
package claims
