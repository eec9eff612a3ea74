package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

type IdentityStatus string

const (
	IdentityActive   IdentityStatus = "active"
	IdentityInactive IdentityStatus = "inactive"
)

func (s IdentityStatus) Valid() bool {
	return s == IdentityActive || s == IdentityInactive
}

// Identity is a person known to the system. Identities are never hard-deleted.
type Identity struct {
	ID           int64          `json:"id"`
	Username     string         `json:"username"`
	DisplayName  string         `json:"display_name"`
	Email        string         `json:"email"`
	Role         Role           `json:"role"`
	DepartmentID *int64         `json:"department_id,omitempty"`
	Status       IdentityStatus `json:"status"`
	LastLoginAt  *time.Time     `json:"last_login_at,omitempty"`
	PasswordHash string         `json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (i *Identity) IsActive() bool {
	return i.Status == IdentityActive
}

type IdentityRepository interface {
	GetByUsername(ctx context.Context, username string) (*Identity, error)
	GetByID(ctx context.Context, id int64) (*Identity, error)
	Create(ctx context.Context, identity *Identity) error
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
}

// VerifiedIdentity is what the directory vouches for after a successful bind.
type VerifiedIdentity struct {
	Username    string
	DisplayName string
	Email       string
	Groups      []string
}

type DirectoryRecord struct {
	Username    string
	DisplayName string
	Email       string
	Groups      []string
}

// IdentityProvider is the external directory. Implementations must honour
// ctx cancellation.
type IdentityProvider interface {
	Authenticate(ctx context.Context, username, secret string) (*VerifiedIdentity, error)
	Lookup(ctx context.Context, username string) (*DirectoryRecord, error)
}

// NormalizeUsername folds case so usernames compare case-insensitively. A
// Caser is stateful, so each call gets its own.
func NormalizeUsername(username string) string {
	return cases.Fold().String(strings.TrimSpace(username))
}

var (
	ErrBadCredentials       = errors.New("directory rejected credentials")
	ErrDirectoryUnreachable = errors.New("directory unreachable")
	ErrDirectoryNotFound    = errors.New("directory entry not found")
)
