package user

import "github.com/frahmantamala/facilities-maintenance/internal/auth"

type ProvisionDTO struct {
	Username     string    `json:"username" validate:"notblank,max=100"`
	DisplayName  string    `json:"display_name" validate:"notblank,max=200"`
	Email        string    `json:"email" validate:"omitempty,email,max=255"`
	Role         auth.Role `json:"role" validate:"required"`
	DepartmentID *int64    `json:"department_id,omitempty" validate:"omitempty,gt=0"`
	// Password is only needed when the local directory is in use.
	Password string `json:"password,omitempty" validate:"omitempty,min=8,max=256"`
}

type ChangeRoleDTO struct {
	Role auth.Role `json:"role" validate:"required"`
}

type SetStatusDTO struct {
	Status auth.IdentityStatus `json:"status" validate:"required,oneof=active inactive"`
}

type ListFilter struct {
	Role   auth.Role
	Limit  int
	Offset int
}

type ListResponse struct {
	Users  []*auth.Identity `json:"users"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}
