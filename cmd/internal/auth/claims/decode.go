package claims

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// WS-Federation claim URIs as emitted by the backend's identity stack.
const (
	uriNameIdentifier = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier"
	uriEmail          = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress"
	uriName           = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/name"
	uriMobilePhone    = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/mobilephone"
	uriRole           = "http://schemas.microsoft.com/ws/2008/06/identity/claims/role"
)

// Lookup paths, first non-empty wins.
var (
	idClaims       = []string{"nameid", "sub", "uid", uriNameIdentifier}
	emailClaims    = []string{"email", uriEmail}
	nameClaims     = []string{"name", "unique_name", uriName}
	roleClaims     = []string{"role", "roles", uriRole}
	usernameClaims = []string{"username", "preferred_username", "unique_name"}
	phoneClaims    = []string{"phone_number", "phone", uriMobilePhone}
)

// Decoder is the function shape consumed by the session controller.
type Decoder func(bearer string) (Identity, error)

// Decode parses the bearer token's payload into an Identity.
//
// It fails only on structurally invalid tokens or when no id claim is present.
// Missing role and phone decode to "".
func Decode(bearer string) (Identity, error) {
	mc, err := parse(bearer)
	if err != nil {
		return Identity{}, err
	}

	id := Identity{
		ID:          firstString(mc, idClaims),
		Email:       firstString(mc, emailClaims),
		DisplayName: firstString(mc, nameClaims),
		Role:        firstString(mc, roleClaims),
		Username:    firstString(mc, usernameClaims),
		Phone:       firstString(mc, phoneClaims),
	}
	if id.ID == "" {
		return Identity{}, &DecodeError{Reason: "missing id claim"}
	}
	if id.DisplayName == "" {
		id.DisplayName = id.Username
	}
	return id, nil
}

// ExpiresAt returns the token's exp claim, if the token parses and carries one.
func ExpiresAt(bearer string) (time.Time, bool) {
	mc, err := parse(bearer)
	if err != nil {
		return time.Time{}, false
	}
	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func parse(bearer string) (jwt.MapClaims, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return nil, &DecodeError{Reason: "empty token"}
	}

	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(bearer, mc); err != nil {
		return nil, &DecodeError{Reason: "malformed token", Err: err}
	}
	return mc, nil
}

func firstString(mc jwt.MapClaims, keys []string) string {
	for _, k := range keys {
		if s := claimString(mc[k]); s != "" {
			return s
		}
	}
	return ""
}

func claimString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		for _, e := range t {
			if s := claimString(e); s != "" {
				return s
			}
		}
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%.0f", t))
	}
	return ""
}
