package directory

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/frahmantamala/facilities-maintenance/internal/auth"
	userDatamodel "github.com/frahmantamala/facilities-maintenance/internal/core/datamodel/user"
)

// dummyHash is compared against when the username is unknown so both paths
// cost one bcrypt comparison.
var dummyHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z7zVXyYVw8rRj8yWJ1sWc9e6")

// Local is a directory backed by bcrypt hashes in the identities table.
type Local struct {
	db *gorm.DB
}

func NewLocal(db *gorm.DB) *Local {
	return &Local{db: db}
}

func (l *Local) Authenticate(ctx context.Context, username, secret string) (*auth.VerifiedIdentity, error) {
	row, err := l.find(ctx, username)
	if err != nil {
		if errors.Is(err, auth.ErrDirectoryNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(secret))
			return nil, auth.ErrBadCredentials
		}
		return nil, err
	}

	if row.PasswordHash == "" {
		return nil, auth.ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(secret)); err != nil {
		return nil, auth.ErrBadCredentials
	}

	return &auth.VerifiedIdentity{
		Username:    row.Username,
		DisplayName: row.DisplayName,
		Email:       row.Email,
		Groups:      []string{row.Role},
	}, nil
}

func (l *Local) Lookup(ctx context.Context, username string) (*auth.DirectoryRecord, error) {
	row, err := l.find(ctx, username)
	if err != nil {
		return nil, err
	}
	return &auth.DirectoryRecord{
		Username:    row.Username,
		DisplayName: row.DisplayName,
		Email:       row.Email,
		Groups:      []string{row.Role},
	}, nil
}

func (l *Local) find(ctx context.Context, username string) (*userDatamodel.Identity, error) {
	var row userDatamodel.Identity
	err := l.db.WithContext(ctx).Where("username = ?", auth.NormalizeUsername(username)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, auth.ErrDirectoryNotFound
		}
		return nil, fmt.Errorf("%w: %v", auth.ErrDirectoryUnreachable, err)
	}
	return &row, nil
}
