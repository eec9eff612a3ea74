package notification

import (
	"time"

	"github.com/frahmantamala/facilities-maintenance/internal/call"
	notificationDatamodel "github.com/frahmantamala/facilities-maintenance/internal/core/datamodel/notification"
	"github.com/frahmantamala/facilities-maintenance/internal/core/events"
)

type Type string

const (
	TypeNewCall      Type = "new_call"
	TypeAssignment   Type = "assignment"
	TypeStatusChange Type = "status_change"
	TypeCompletion   Type = "completion"
)

// TypeForEvent maps a call event type to the notification it triggers.
func TypeForEvent(eventType string) (Type, bool) {
	switch eventType {
	case events.EventTypeCallCreated:
		return TypeNewCall, true
	case events.EventTypeCallAssigned:
		return TypeAssignment, true
	case events.EventTypeCallStatusChanged:
		return TypeStatusChange, true
	case events.EventTypeCallCompleted:
		return TypeCompletion, true
	}
	return "", false
}

type RecipientType string

const (
	RecipientCoordinator RecipientType = "coordinator"
	RecipientAssignee    RecipientType = "assignee"
	RecipientReporter    RecipientType = "reporter"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// CallSummary is the call data notifications are built from.
type CallSummary = events.CallSnapshot

type Coordinator struct {
	ID         int64       `json:"id"`
	IdentityID *int64      `json:"identity_id,omitempty"`
	Name       string      `json:"name"`
	Email      string      `json:"email"`
	Region     call.Region `json:"region"`
	Provinces  []string    `json:"provinces"`
	IsActive   bool        `json:"is_active"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

func (c *Coordinator) CoversProvince(province string) bool {
	for _, p := range c.Provinces {
		if p == province {
			return true
		}
	}
	return false
}

type Recipient struct {
	Type    RecipientType
	Name    string
	Address string
}

type Record struct {
	ID            int64         `json:"id"`
	CallID        string        `json:"call_id"`
	CallNumber    string        `json:"call_number"`
	Type          Type          `json:"type"`
	RecipientType RecipientType `json:"recipient_type"`
	Recipient     string        `json:"recipient"`
	Subject       string        `json:"subject"`
	Body          string        `json:"-"`
	Status        Status        `json:"status"`
	DeliveryMode  string        `json:"delivery_mode"`
	Attempt       int           `json:"attempt"`
	PreviousID    *int64        `json:"previous_id,omitempty"`
	ErrorDetail   string        `json:"error_detail,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	ResolvedAt    *time.Time    `json:"resolved_at,omitempty"`
}

type StatCount struct {
	Type   Type   `json:"type"`
	Status Status `json:"status"`
	Count  int64  `json:"count"`
}

type Stats struct {
	DeliveryMode string           `json:"delivery_mode"`
	Total        int64            `json:"total"`
	ByStatus     map[Status]int64 `json:"by_status"`
	ByType       map[Type]int64   `json:"by_type"`
	Breakdown    []StatCount      `json:"breakdown"`
}

func CoordinatorToDataModel(c *Coordinator) *notificationDatamodel.Coordinator {
	return &notificationDatamodel.Coordinator{
		ID:         c.ID,
		IdentityID: c.IdentityID,
		Name:       c.Name,
		Email:      c.Email,
		Region:     string(c.Region),
		Provinces:  c.Provinces,
		IsActive:   c.IsActive,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func CoordinatorFromDataModel(c *notificationDatamodel.Coordinator) *Coordinator {
	return &Coordinator{
		ID:         c.ID,
		IdentityID: c.IdentityID,
		Name:       c.Name,
		Email:      c.Email,
		Region:     call.Region(c.Region),
		Provinces:  append([]string(nil), c.Provinces...),
		IsActive:   c.IsActive,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func RecordToDataModel(r *Record) *notificationDatamodel.Record {
	return &notificationDatamodel.Record{
		ID:            r.ID,
		CallID:        r.CallID,
		CallNumber:    r.CallNumber,
		Type:          string(r.Type),
		RecipientType: string(r.RecipientType),
		Recipient:     r.Recipient,
		Subject:       r.Subject,
		Body:          r.Body,
		Status:        string(r.Status),
		DeliveryMode:  r.DeliveryMode,
		Attempt:       r.Attempt,
		PreviousID:    r.PreviousID,
		ErrorDetail:   r.ErrorDetail,
		CreatedAt:     r.CreatedAt,
		ResolvedAt:    r.ResolvedAt,
	}
}

func RecordFromDataModel(r *notificationDatamodel.Record) *Record {
	return &Record{
		ID:            r.ID,
		CallID:        r.CallID,
		CallNumber:    r.CallNumber,
		Type:          Type(r.Type),
		RecipientType: RecipientType(r.RecipientType),
		Recipient:     r.Recipient,
		Subject:       r.Subject,
		Body:          r.Body,
		Status:        Status(r.Status),
		DeliveryMode:  r.DeliveryMode,
		Attempt:       r.Attempt,
		PreviousID:    r.PreviousID,
		ErrorDetail:   r.ErrorDetail,
		CreatedAt:     r.CreatedAt,
		ResolvedAt:    r.ResolvedAt,
	}
}
