package call

import (
	"errors"
	"fmt"
	"strings"
	"time"

	callDatamodel "github.com/frahmantamala/facilities-maintenance/internal/core/datamodel/call"
	"github.com/frahmantamala/facilities-maintenance/internal/core/events"
)

type Status string

const (
	StatusOpen       Status = "open"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
	StatusCancelled  Status = "cancelled"
)

// transitions is the only source of legal status changes.
var transitions = map[Status][]Status{
	StatusOpen:       {StatusAssigned, StatusCancelled},
	StatusAssigned:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusResolved, StatusClosed, StatusCancelled},
	StatusResolved:   {StatusClosed},
	StatusClosed:     nil,
	StatusCancelled:  nil,
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

// IsCompletion reports whether entering s stamps the completed date.
func (s Status) IsCompletion() bool {
	return s == StatusResolved || s == StatusClosed
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s *Status) UnmarshalText(text []byte) error {
	v := Status(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("unknown status %q", string(text))
	}
	*s = v
	return nil
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var responseTargets = map[Priority]time.Duration{
	PriorityLow:      72 * time.Hour,
	PriorityMedium:   24 * time.Hour,
	PriorityHigh:     4 * time.Hour,
	PriorityCritical: time.Hour,
}

func (p Priority) Valid() bool {
	_, ok := responseTargets[p]
	return ok
}

// ResponseTarget is the time allowed between report and first assignment.
func (p Priority) ResponseTarget() time.Duration {
	return responseTargets[p]
}

func (p *Priority) UnmarshalText(text []byte) error {
	v := Priority(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("unknown priority %q", string(text))
	}
	*p = v
	return nil
}

type Region string

const (
	RegionCoastal Region = "coastal"
	RegionInland  Region = "inland"
)

var provincesByRegion = map[Region][]string{
	RegionCoastal: {"Western Cape", "Eastern Cape", "KwaZulu-Natal"},
	RegionInland:  {"Gauteng", "Free State", "Limpopo", "Mpumalanga", "North West", "Northern Cape"},
}

func (r Region) Valid() bool {
	_, ok := provincesByRegion[r]
	return ok
}

func (r Region) Provinces() []string {
	return append([]string(nil), provincesByRegion[r]...)
}

// HasProvince reports whether province belongs to r.
func (r Region) HasProvince(province string) bool {
	for _, p := range provincesByRegion[r] {
		if p == province {
			return true
		}
	}
	return false
}

func (r *Region) UnmarshalText(text []byte) error {
	v := Region(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("unknown region %q", string(text))
	}
	*r = v
	return nil
}

// RegionOf returns the region a province belongs to.
func RegionOf(province string) (Region, bool) {
	for r, provinces := range provincesByRegion {
		for _, p := range provinces {
			if p == province {
				return r, true
			}
		}
	}
	return "", false
}

func ValidProvince(province string) bool {
	_, ok := RegionOf(province)
	return ok
}

var ErrCallNumberConflict = errors.New("call number already taken")

// FormatCallNumber renders MC-YYYYMM-NNNN for the period containing t.
func FormatCallNumber(t time.Time, seq int) string {
	return fmt.Sprintf("MC-%s-%04d", Period(t), seq)
}

func Period(t time.Time) string {
	return t.UTC().Format("200601")
}

type MaintenanceCall struct {
	ID                  string     `json:"id"`
	CallNumber          string     `json:"call_number"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	CallType            string     `json:"call_type"`
	Building            string     `json:"building"`
	Province            string     `json:"province"`
	Region              Region     `json:"region"`
	Priority            Priority   `json:"priority"`
	Status              Status     `json:"status"`
	ReporterID          int64      `json:"reporter_id"`
	ReporterName        string     `json:"reporter_name,omitempty"`
	ReporterContact     string     `json:"reporter_contact,omitempty"`
	AssignedTo          *int64     `json:"assigned_to,omitempty"`
	ReportedDate        time.Time  `json:"reported_date"`
	AssignedDate        *time.Time `json:"assigned_date,omitempty"`
	CompletedDate       *time.Time `json:"completed_date,omitempty"`
	ResponseTimeMinutes *int       `json:"response_time_minutes,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (c *MaintenanceCall) IsAssignedTo(identityID int64) bool {
	return c.AssignedTo != nil && *c.AssignedTo == identityID
}

// MeetsResponseTarget compares the recorded response time with the priority
// target. ok is false until the call has been assigned.
func (c *MaintenanceCall) MeetsResponseTarget() (met bool, ok bool) {
	if c.ResponseTimeMinutes == nil {
		return false, false
	}
	return time.Duration(*c.ResponseTimeMinutes)*time.Minute <= c.Priority.ResponseTarget(), true
}

func (c *MaintenanceCall) Snapshot() events.CallSnapshot {
	return events.CallSnapshot{
		ID:              c.ID,
		CallNumber:      c.CallNumber,
		Title:           c.Title,
		Description:     c.Description,
		CallType:        c.CallType,
		Building:        c.Building,
		Province:        c.Province,
		Region:          string(c.Region),
		Priority:        string(c.Priority),
		Status:          string(c.Status),
		ReporterID:      c.ReporterID,
		ReporterName:    c.ReporterName,
		ReporterContact: c.ReporterContact,
		AssigneeID:      c.AssignedTo,
		ReportedDate:    c.ReportedDate,
	}
}

type Comment struct {
	ID         int64     `json:"id"`
	CallID     string    `json:"call_id"`
	AuthorID   int64     `json:"author_id"`
	Body       string    `json:"body"`
	IsInternal bool      `json:"is_internal"`
	CreatedAt  time.Time `json:"created_at"`
}

type Attachment struct {
	ID          int64     `json:"id"`
	CallID      string    `json:"call_id"`
	FileName    string    `json:"file_name"`
	StoragePath string    `json:"storage_path"`
	SizeBytes   int64     `json:"size_bytes"`
	UploadedBy  int64     `json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"`
}

func ToDataModel(c *MaintenanceCall) *callDatamodel.MaintenanceCall {
	return &callDatamodel.MaintenanceCall{
		ID:                  c.ID,
		CallNumber:          c.CallNumber,
		Title:               c.Title,
		Description:         c.Description,
		CallType:            c.CallType,
		Building:            c.Building,
		Province:            c.Province,
		Region:              string(c.Region),
		Priority:            string(c.Priority),
		Status:              string(c.Status),
		ReporterID:          c.ReporterID,
		ReporterName:        c.ReporterName,
		ReporterContact:     c.ReporterContact,
		AssignedTo:          c.AssignedTo,
		ReportedDate:        c.ReportedDate,
		AssignedDate:        c.AssignedDate,
		CompletedDate:       c.CompletedDate,
		ResponseTimeMinutes: c.ResponseTimeMinutes,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

func FromDataModel(c *callDatamodel.MaintenanceCall) *MaintenanceCall {
	return &MaintenanceCall{
		ID:                  c.ID,
		CallNumber:          c.CallNumber,
		Title:               c.Title,
		Description:         c.Description,
		CallType:            c.CallType,
		Building:            c.Building,
		Province:            c.Province,
		Region:              Region(c.Region),
		Priority:            Priority(c.Priority),
		Status:              Status(c.Status),
		ReporterID:          c.ReporterID,
		ReporterName:        c.ReporterName,
		ReporterContact:     c.ReporterContact,
		AssignedTo:          c.AssignedTo,
		ReportedDate:        c.ReportedDate,
		AssignedDate:        c.AssignedDate,
		CompletedDate:       c.CompletedDate,
		ResponseTimeMinutes: c.ResponseTimeMinutes,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

func CommentFromDataModel(c *callDatamodel.Comment) *Comment {
	return &Comment{
		ID:         c.ID,
		CallID:     c.CallID,
		AuthorID:   c.AuthorID,
		Body:       c.Body,
		IsInternal: c.IsInternal,
		CreatedAt:  c.CreatedAt,
	}
}

func AttachmentFromDataModel(a *callDatamodel.Attachment) *Attachment {
	return &Attachment{
		ID:          a.ID,
		CallID:      a.CallID,
		FileName:    a.FileName,
		StoragePath: a.StoragePath,
		SizeBytes:   a.SizeBytes,
		UploadedBy:  a.UploadedBy,
		CreatedAt:   a.CreatedAt,
	}
}
