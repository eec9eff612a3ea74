package notification

import (
	"time"

	"gorm.io/datatypes"
)

type Coordinator struct {
	ID         int64                       `gorm:"primaryKey"`
	IdentityID *int64                      `gorm:"column:identity_id"`
	Name       string                      `gorm:"column:name;not null"`
	Email      string                      `gorm:"column:email;not null;uniqueIndex"`
	Region     string                      `gorm:"column:region;not null;index"`
	Provinces  datatypes.JSONSlice[string] `gorm:"column:provinces"`
	IsActive   bool                        `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time                   `gorm:"column:created_at"`
	UpdatedAt  time.Time                   `gorm:"column:updated_at"`
}

func (Coordinator) TableName() string {
	return "coordinators"
}

// Record is one delivery attempt. Rows are append-only apart from resolving
// a pending row.
type Record struct {
	ID            int64      `gorm:"primaryKey"`
	CallID        string     `gorm:"column:call_id;not null;index"`
	CallNumber    string     `gorm:"column:call_number;not null"`
	Type          string     `gorm:"column:type;not null"`
	RecipientType string     `gorm:"column:recipient_type;not null"`
	Recipient     string     `gorm:"column:recipient;not null"`
	Subject       string     `gorm:"column:subject;not null"`
	Body          string     `gorm:"column:body;not null"`
	Status        string     `gorm:"column:status;not null;index"`
	DeliveryMode  string     `gorm:"column:delivery_mode;not null"`
	Attempt       int        `gorm:"column:attempt;not null"`
	PreviousID    *int64     `gorm:"column:previous_id;index"`
	ErrorDetail   string     `gorm:"column:error_detail"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	ResolvedAt    *time.Time `gorm:"column:resolved_at"`
}

func (Record) TableName() string {
	return "notification_records"
}
