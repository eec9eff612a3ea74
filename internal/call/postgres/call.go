package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/facilities-maintenance/internal"
	"github.com/frahmantamala/facilities-maintenance/internal/call"
	callDatamodel "github.com/frahmantamala/facilities-maintenance/internal/core/datamodel/call"
)

var terminalStatuses = []string{string(call.StatusClosed), string(call.StatusCancelled)}

type CallRepository struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewCallRepository(db *gorm.DB) *CallRepository {
	return &CallRepository{db: db}
}

// WithTimeout bounds each repository call. Zero keeps the package default.
func (r *CallRepository) WithTimeout(d time.Duration) *CallRepository {
	r.timeout = d
	return r
}

func (r *CallRepository) Create(ctx context.Context, c *call.MaintenanceCall) error {
	ctx, cancel := internal.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := call.ToDataModel(c)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := nextSequence(tx, call.Period(c.ReportedDate))
		if err != nil {
			return err
		}
		row.CallNumber = call.FormatCallNumber(c.ReportedDate, seq)

		if err := tx.Create(row).Error; err != nil {
			if internal.IsDuplicateError(err) {
				return call.ErrCallNumberConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.CallNumber = row.CallNumber
	return nil
}

// nextSequence claims the next value of the period counter. Losing the race
// to another transaction yields ErrCallNumberConflict.
func nextSequence(tx *gorm.DB, period string) (int, error) {
	var seq callDatamodel.CallNumberSequence
	err := tx.Where("period = ?", period).First(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		seq = callDatamodel.CallNumberSequence{Period: period, LastValue: 1}
		if err := tx.Create(&seq).Error; err != nil {
			if internal.IsDuplicateError(err) {
				return 0, call.ErrCallNumberConflict
			}
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}

	res := tx.Model(&callDatamodel.CallNumberSequence{}).
		Where("period = ? AND last_value = ?", period, seq.LastValue).
		Update("last_value", seq.LastValue+1)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, call.ErrCallNumberConflict
	}
	return seq.LastValue + 1, nil
}

func (r *CallRepository) GetByID(ctx context.Context, id string) (*call.MaintenanceCall, error) {
	var row callDatamodel.MaintenanceCall
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrCallNotFound
		}
		return nil, err
	}
	return call.FromDataModel(&row), nil
}

func (r *CallRepository) List(ctx context.Context, f call.ListFilter) ([]*call.MaintenanceCall, error) {
	q := r.db.WithContext(ctx).Model(&callDatamodel.MaintenanceCall{})
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Region != "" {
		q = q.Where("region = ?", string(f.Region))
	}
	if f.Province != "" {
		q = q.Where("province = ?", f.Province)
	}
	if f.AssignedTo != nil {
		q = q.Where("assigned_to = ?", *f.AssignedTo)
	}
	if f.ReporterID != nil {
		q = q.Where("reporter_id = ?", *f.ReporterID)
	}

	var rows []callDatamodel.MaintenanceCall
	if err := q.Order("reported_date DESC").Order("call_number DESC").
		Limit(f.Limit).Offset(f.Offset).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	calls := make([]*call.MaintenanceCall, 0, len(rows))
	for i := range rows {
		calls = append(calls, call.FromDataModel(&rows[i]))
	}
	return calls, nil
}

// Assign tries the first-assignment update, guarded by assigned_to IS NULL.
// When another assignment got there first it falls back to a plain
// reassignment that leaves assigned_date and response_time_minutes alone.
func (r *CallRepository) Assign(ctx context.Context, id string, assigneeID int64, at time.Time, responseMinutes int) (bool, error) {
	ctx, cancel := internal.WithTimeout(ctx, r.timeout)
	defer cancel()

	first := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&callDatamodel.MaintenanceCall{}).
			Where("id = ? AND assigned_to IS NULL AND status NOT IN ?", id, terminalStatuses).
			Updates(map[string]interface{}{
				"assigned_to":           assigneeID,
				"assigned_date":         at,
				"response_time_minutes": responseMinutes,
				"status":                gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END", string(call.StatusOpen), string(call.StatusAssigned)),
				"updated_at":            at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			first = true
			return nil
		}

		res = tx.Model(&callDatamodel.MaintenanceCall{}).
			Where("id = ? AND status NOT IN ?", id, terminalStatuses).
			Updates(map[string]interface{}{
				"assigned_to": assigneeID,
				"updated_at":  at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		return r.missingOrTerminal(tx, id)
	})
	return first, err
}

func (r *CallRepository) missingOrTerminal(tx *gorm.DB, id string) error {
	var count int64
	if err := tx.Model(&callDatamodel.MaintenanceCall{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return internal.ErrCallNotFound
	}
	return internal.ErrCallTerminal
}

// UpdateStatus is a compare-and-set on status. Completion statuses keep the
// first completed_date.
func (r *CallRepository) UpdateStatus(ctx context.Context, id string, from, to call.Status, at time.Time) (bool, error) {
	ctx, cancel := internal.WithTimeout(ctx, r.timeout)
	defer cancel()

	updates := map[string]interface{}{
		"status":     string(to),
		"updated_at": at,
	}
	if to.IsCompletion() {
		updates["completed_date"] = gorm.Expr("COALESCE(completed_date, ?)", at)
	}

	res := r.db.WithContext(ctx).Model(&callDatamodel.MaintenanceCall{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *CallRepository) AddComment(ctx context.Context, c *call.Comment) error {
	row := &callDatamodel.Comment{
		CallID:     c.CallID,
		AuthorID:   c.AuthorID,
		Body:       c.Body,
		IsInternal: c.IsInternal,
		CreatedAt:  c.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	c.ID = row.ID
	return nil
}

func (r *CallRepository) ListComments(ctx context.Context, callID string, includeInternal bool) ([]*call.Comment, error) {
	q := r.db.WithContext(ctx).Where("call_id = ?", callID)
	if !includeInternal {
		q = q.Where("is_internal = ?", false)
	}

	var rows []callDatamodel.Comment
	if err := q.Order("created_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	comments := make([]*call.Comment, 0, len(rows))
	for i := range rows {
		comments = append(comments, call.CommentFromDataModel(&rows[i]))
	}
	return comments, nil
}

func (r *CallRepository) ListAttachments(ctx context.Context, callID string) ([]*call.Attachment, error) {
	var rows []callDatamodel.Attachment
	if err := r.db.WithContext(ctx).Where("call_id = ?", callID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	attachments := make([]*call.Attachment, 0, len(rows))
	for i := range rows {
		attachments = append(attachments, call.AttachmentFromDataModel(&rows[i]))
	}
	return attachments, nil
}

// Purge deletes the call and everything hanging off it in one transaction.
// The period counter is left untouched so numbers are never reused.
func (r *CallRepository) Purge(ctx context.Context, id string) error {
	ctx, cancel := internal.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("call_id = ?", id).Delete(&callDatamodel.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("call_id = ?", id).Delete(&callDatamodel.Attachment{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&callDatamodel.MaintenanceCall{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return internal.ErrCallNotFound
		}
		return nil
	})
}
