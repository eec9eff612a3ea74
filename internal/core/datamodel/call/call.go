package call

import "time"

type MaintenanceCall struct {
	ID                  string     `gorm:"primaryKey;type:varchar(36)"`
	CallNumber          string     `gorm:"column:call_number;uniqueIndex;not null"`
	Title               string     `gorm:"column:title;not null"`
	Description         string     `gorm:"column:description;not null"`
	CallType            string     `gorm:"column:call_type;not null"`
	Building            string     `gorm:"column:building;not null"`
	Province            string     `gorm:"column:province;not null"`
	Region              string     `gorm:"column:region;not null;index"`
	Priority            string     `gorm:"column:priority;not null"`
	Status              string     `gorm:"column:status;not null;index"`
	ReporterID          int64      `gorm:"column:reporter_id;not null;index"`
	ReporterName        string     `gorm:"column:reporter_name"`
	ReporterContact     string     `gorm:"column:reporter_contact"`
	AssignedTo          *int64     `gorm:"column:assigned_to;index"`
	ReportedDate        time.Time  `gorm:"column:reported_date;not null"`
	AssignedDate        *time.Time `gorm:"column:assigned_date"`
	CompletedDate       *time.Time `gorm:"column:completed_date"`
	ResponseTimeMinutes *int       `gorm:"column:response_time_minutes"`
	CreatedAt           time.Time  `gorm:"column:created_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at"`
}

func (MaintenanceCall) TableName() string {
	return "maintenance_calls"
}

type Comment struct {
	ID         int64     `gorm:"primaryKey"`
	CallID     string    `gorm:"column:call_id;not null;index"`
	AuthorID   int64     `gorm:"column:author_id;not null"`
	Body       string    `gorm:"column:body;not null"`
	IsInternal bool      `gorm:"column:is_internal;not null"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (Comment) TableName() string {
	return "call_comments"
}

type Attachment struct {
	ID          int64     `gorm:"primaryKey"`
	CallID      string    `gorm:"column:call_id;not null;index"`
	FileName    string    `gorm:"column:file_name;not null"`
	StoragePath string    `gorm:"column:storage_path;not null"`
	SizeBytes   int64     `gorm:"column:size_bytes;not null"`
	UploadedBy  int64     `gorm:"column:uploaded_by;not null"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (Attachment) TableName() string {
	return "call_attachments"
}

// CallNumberSequence is the per-period counter behind call numbers. Rows are
// only ever incremented.
type CallNumberSequence struct {
	Period    string `gorm:"primaryKey;column:period;type:varchar(6)"`
	LastValue int    `gorm:"column:last_value;not null"`
}

func (CallNumberSequence) TableName() string {
	return "call_number_sequences"
}
