package auth

import "time"

type LoginDTO struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required,max=256"`
}

type LoginResult struct {
	Session  *Session
	Identity *Identity
}

// LoginResponse is returned by POST /auth/login. The session token is also
// echoed in the X-Session-Token header.
type LoginResponse struct {
	SessionToken string    `json:"session_token"`
	CSRFToken    string    `json:"csrf_token"`
	ExpiresIn    int64     `json:"expires_in"`
	Identity     *Identity `json:"identity"`
	IssuedAt     time.Time `json:"issued_at"`
}
