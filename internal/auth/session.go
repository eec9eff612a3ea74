package auth

import (
	"context"
	"errors"
	"time"
)

// Fingerprint is the client snapshot captured at login and compared on
// every request.
type Fingerprint struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}

func (f Fingerprint) Matches(other Fingerprint) bool {
	return f.IPAddress == other.IPAddress && f.UserAgent == other.UserAgent
}

type Session struct {
	Token            string      `json:"token"`
	IdentityID       int64       `json:"identity_id"`
	Username         string      `json:"username"`
	Role             Role        `json:"role"`
	CreatedAt        time.Time   `json:"created_at"`
	LastActivity     time.Time   `json:"last_activity"`
	LastRegeneration time.Time   `json:"last_regeneration"`
	Fingerprint      Fingerprint `json:"fingerprint"`
	Authenticated    bool        `json:"authenticated"`
	CSRFToken        string      `json:"csrf_token"`

	// ForwardTo is set only on the record left behind under a regenerated
	// token; it names the token that now holds the session.
	ForwardTo string `json:"forward_to,omitempty"`
}

func (s *Session) IsForward() bool {
	return s.ForwardTo != ""
}

func (s *Session) Principal() *Principal {
	return &Principal{ID: s.IdentityID, Username: s.Username, Role: s.Role}
}

// Principal is the authenticated actor handed to services.
type Principal struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Has reports whether the principal may act as role.
func (p *Principal) Has(role Role) bool {
	return p != nil && p.Role.Includes(role)
}

type Status string

const (
	StatusValid    Status = "valid"
	StatusExpired  Status = "expired"
	StatusTampered Status = "tampered"
)

// Result is the outcome of SessionStore.Validate. Unknown and expired tokens
// are indistinguishable: both yield StatusExpired with a nil Session.
type Result struct {
	Status  Status
	Session *Session
	// Destroyed is true when strict fingerprint mode removed the session.
	Destroyed bool
}

type DenyReason string

const (
	DenyUnauthenticated  DenyReason = "unauthenticated"
	DenyInsufficientRole DenyReason = "insufficient_role"
)

type Decision struct {
	Allowed bool
	Reason  DenyReason
}

var (
	Allowed = Decision{Allowed: true}

	ErrSessionNotFound = errors.New("session not found")
)

// Backend persists session records keyed by token.
//
// Refresh and Rotate are compare-and-set on the record under the token: they
// write only while it still holds the live session. When another request has
// already rotated it, they write nothing and return the successor instead.
// Both return ErrSessionNotFound when the token, or its successor, is gone.
type Backend interface {
	Save(ctx context.Context, token string, s *Session, ttl time.Duration) error
	Get(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
	Refresh(ctx context.Context, s *Session, ttl time.Duration) (*Session, error)
	Rotate(ctx context.Context, oldToken string, next *Session, ttl time.Duration, forward *Session, forwardTTL time.Duration) (*Session, error)
}
