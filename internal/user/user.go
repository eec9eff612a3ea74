package user

import (
	"github.com/frahmantamala/facilities-maintenance/internal/auth"
	userDatamodel "github.com/frahmantamala/facilities-maintenance/internal/core/datamodel/user"
)

func ToDataModel(i *auth.Identity) *userDatamodel.Identity {
	return &userDatamodel.Identity{
		ID:           i.ID,
		Username:     i.Username,
		DisplayName:  i.DisplayName,
		Email:        i.Email,
		Role:         string(i.Role),
		DepartmentID: i.DepartmentID,
		Status:       string(i.Status),
		PasswordHash: i.PasswordHash,
		LastLoginAt:  i.LastLoginAt,
		CreatedAt:    i.CreatedAt,
		UpdatedAt:    i.UpdatedAt,
	}
}

// FromDataModel trusts the stored role; the column is only ever written
// from a parsed auth.Role.
func FromDataModel(i *userDatamodel.Identity) *auth.Identity {
	return &auth.Identity{
		ID:           i.ID,
		Username:     i.Username,
		DisplayName:  i.DisplayName,
		Email:        i.Email,
		Role:         auth.Role(i.Role),
		DepartmentID: i.DepartmentID,
		Status:       auth.IdentityStatus(i.Status),
		PasswordHash: i.PasswordHash,
		LastLoginAt:  i.LastLoginAt,
		CreatedAt:    i.CreatedAt,
		UpdatedAt:    i.UpdatedAt,
	}
}
