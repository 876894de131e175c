package authapi

import "time"

type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
	Platform   string `json:"platform"`
}

type refreshRequest struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token"`
	RememberMe   bool   `json:"remember_me"`
	Platform     string `json:"platform"`
}

type userResponse struct {
	ID          string  `json:"id"`
	Username    *string `json:"username"`
	Email       *string `json:"email"`
	DisplayName *string `json:"display_name"`
}

type sessionResponse struct {
	SessionID        string    `json:"session_id"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type loginResponse struct {
	User    userResponse    `json:"user"`
	Session sessionResponse `json:"session"`
}

type refreshResponse struct {
	Session sessionResponse `json:"session"`
}

type projectAccessResponse struct {
	ProjectID string `json:"project_id"`
	Allowed   bool   `json:"allowed"`
	Role      string `json:"role,omitempty"`
}

// TokenPair is what login and refresh hand back.
type TokenPair struct {
	BearerToken  string
	RefreshToken string
	BearerExp    time.Time
}

func toTokenPair(s sessionResponse) TokenPair {
	return TokenPair{
		BearerToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		BearerExp:    s.AccessExpiresAt,
	}
}
