package claims

import "strings"

// RoleAdmin is the role value that routes a user to the admin surface.
const RoleAdmin = "admin"

// Identity is the typed claims record carried by a bearer token.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Username    string `json:"username"`
	Phone       string `json:"phone"`
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return strings.EqualFold(strings.TrimSpace(i.Role), RoleAdmin)
}

// Subject returns the most specific stable key for the identity: id, then username.
// Used to namespace per-user state such as the last active project.
func (i Identity) Subject() string {
	if id := strings.TrimSpace(i.ID); id != "" {
		return id
	}
	return strings.TrimSpace(i.Username)
}

// Fallback builds the minimal identity used when an interactively issued token
// cannot be decoded. Login must not fail purely on claims.
func Fallback(username string) Identity {
	username = strings.TrimSpace(username)
	return Identity{Username: username, DisplayName: username}
}
