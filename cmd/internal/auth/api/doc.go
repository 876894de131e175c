// Package authapi is the client for the backend's REST auth surface.
//
// It covers the calls the session controller depends on (login, refresh,
// project access re-checks). The bearer token is never held here; callers pass
// a RequestContext per call so the token in use is always the controller's current one.
package authapi
