package notification

import "github.com/frahmantamala/facilities-maintenance/internal/call"

type CreateCoordinatorDTO struct {
	IdentityID *int64      `json:"identity_id,omitempty"`
	Name       string      `json:"name" validate:"notblank,max=200"`
	Email      string      `json:"email" validate:"required,email,max=254"`
	Region     call.Region `json:"region" validate:"required"`
	Provinces  []string    `json:"provinces" validate:"dive,required"`
}

type CoordinatorsResponse struct {
	Coordinators []*Coordinator `json:"coordinators"`
}
