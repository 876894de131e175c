package authapi

import (
	"net/http"
	"strings"
)

// RequestContext carries the credential attached to one outbound call.
// A zero value sends no Authorization header.
type RequestContext struct {
	BearerToken string
	UserID      string
}

// Authenticated reports whether a bearer token is present.
func (rc RequestContext) Authenticated() bool {
	return strings.TrimSpace(rc.BearerToken) != ""
}

// Apply sets the Authorization header on req.
func (rc RequestContext) Apply(req *http.Request) {
	if tok := strings.TrimSpace(rc.BearerToken); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
}
