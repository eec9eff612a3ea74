package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeCallCreated       = "call.created"
	EventTypeCallAssigned      = "call.assigned"
	EventTypeCallStatusChanged = "call.status_changed"
	EventTypeCallCompleted     = "call.completed"
)

// CallSnapshot is the committed state of a call at the time the event fired.
type CallSnapshot struct {
	ID              string    `json:"id"`
	CallNumber      string    `json:"call_number"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	CallType        string    `json:"call_type"`
	Building        string    `json:"building"`
	Province        string    `json:"province"`
	Region          string    `json:"region"`
	Priority        string    `json:"priority"`
	Status          string    `json:"status"`
	ReporterID      int64     `json:"reporter_id"`
	ReporterName    string    `json:"reporter_name,omitempty"`
	ReporterContact string    `json:"reporter_contact,omitempty"`
	AssigneeID      *int64    `json:"assignee_id,omitempty"`
	ReportedDate    time.Time `json:"reported_date"`
}

type CallEvent struct {
	BaseEvent
	Call       CallSnapshot `json:"call"`
	ActorID    int64        `json:"actor_id"`
	FromStatus string       `json:"from_status,omitempty"`
	ToStatus   string       `json:"to_status,omitempty"`
}

func newCallEvent(eventType string, call CallSnapshot, actorID int64, from, to string) *CallEvent {
	return &CallEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"call_id":     call.ID,
				"call_number": call.CallNumber,
				"region":      call.Region,
				"province":    call.Province,
				"actor_id":    actorID,
				"from_status": from,
				"to_status":   to,
			},
		},
		Call:       call,
		ActorID:    actorID,
		FromStatus: from,
		ToStatus:   to,
	}
}

func NewCallCreatedEvent(call CallSnapshot, actorID int64) *CallEvent {
	return newCallEvent(EventTypeCallCreated, call, actorID, "", call.Status)
}

func NewCallAssignedEvent(call CallSnapshot, actorID int64) *CallEvent {
	return newCallEvent(EventTypeCallAssigned, call, actorID, "", call.Status)
}

func NewCallStatusChangedEvent(call CallSnapshot, from, to string, actorID int64) *CallEvent {
	return newCallEvent(EventTypeCallStatusChanged, call, actorID, from, to)
}

func NewCallCompletedEvent(call CallSnapshot, from, to string, actorID int64) *CallEvent {
	return newCallEvent(EventTypeCallCompleted, call, actorID, from, to)
}
