package audit

import (
	"encoding/json"
	"time"
)

type Action string

const (
	ActionCreate          Action = "create"
	ActionUpdate          Action = "update"
	ActionDelete          Action = "delete"
	ActionLoginSuccess    Action = "login_success"
	ActionLoginFailed     Action = "login_failed"
	ActionLogout          Action = "logout"
	ActionSessionTampered Action = "session_tampered"
	ActionSessionRevoked  Action = "session_revoked"
	ActionRoleChange      Action = "role_change"
)

// Entry is one append-only audit record. Before and After are key/value
// snapshots; key order carries no meaning.
type Entry struct {
	ID           string         `json:"id"`
	ActorID      *int64         `json:"actor_id,omitempty"`
	SubjectTable string         `json:"subject_table"`
	SubjectID    string         `json:"subject_id"`
	Action       Action         `json:"action"`
	Before       map[string]any `json:"before,omitempty"`
	After        map[string]any `json:"after,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

type Filter struct {
	SubjectTable string
	SubjectID    string
	ActorID      *int64
	Action       Action
	Limit        int
	Offset       int
}

// Actor returns nil for the system actor (id 0).
func Actor(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

// Snapshot flattens v to a key/value map through its JSON form. A nil v or a
// value that does not encode to an object yields nil.
func Snapshot(v any) map[string]any {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
