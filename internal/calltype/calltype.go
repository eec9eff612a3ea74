package calltype

import (
	"time"

	calltypeDatamodel "github.com/frahmantamala/facilities-maintenance/internal/core/datamodel/calltype"
)

// CallType is an entry of the catalog a maintenance call must name.
type CallType struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (c *CallType) ToResponse() CallTypeResponse {
	return CallTypeResponse{
		Name:        c.Name,
		Description: c.Description,
	}
}

func NewCallType(name, description string) *CallType {
	return &CallType{
		Name:        name,
		Description: description,
		IsActive:    true,
	}
}

func ToDataModel(c *CallType) *calltypeDatamodel.CallType {
	return &calltypeDatamodel.CallType{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func FromDataModel(c *calltypeDatamodel.CallType) *CallType {
	return &CallType{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}
