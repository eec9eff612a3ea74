package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	notificationDatamodel "github.com/frahmantamala/facilities-maintenance/internal/core/datamodel/notification"
	"github.com/frahmantamala/facilities-maintenance/internal/notification"
)

type RecordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) Create(ctx context.Context, rec *notification.Record) error {
	row := notification.RecordToDataModel(rec)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	rec.ID = row.ID
	return nil
}

func (r *RecordRepository) Resolve(ctx context.Context, id int64, status notification.Status, detail string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&notificationDatamodel.Record{}).
		Where("id = ? AND status = ?", id, string(notification.StatusPending)).
		Updates(map[string]interface{}{
			"status":       string(status),
			"error_detail": detail,
			"resolved_at":  at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("notification record %d is not pending", id)
	}
	return nil
}

// ListRedeliverable returns failed records below maxAttempts that have not
// been retried yet.
func (r *RecordRepository) ListRedeliverable(ctx context.Context, maxAttempts, limit int) ([]*notification.Record, error) {
	var rows []notificationDatamodel.Record
	err := r.db.WithContext(ctx).
		Where("status = ? AND attempt < ?", string(notification.StatusFailed), maxAttempts).
		Where("NOT EXISTS (SELECT 1 FROM notification_records retry WHERE retry.previous_id = notification_records.id)").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

func (r *RecordRepository) FailStale(ctx context.Context, createdBefore time.Time, detail string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&notificationDatamodel.Record{}).
		Where("status = ? AND created_at < ?", string(notification.StatusPending), createdBefore).
		Updates(map[string]interface{}{
			"status":       string(notification.StatusFailed),
			"error_detail": detail,
			"resolved_at":  at,
		})
	return res.RowsAffected, res.Error
}

func (r *RecordRepository) ListByCall(ctx context.Context, callID string) ([]*notification.Record, error) {
	var rows []notificationDatamodel.Record
	if err := r.db.WithContext(ctx).Where("call_id = ?", callID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

func (r *RecordRepository) Stats(ctx context.Context) ([]notification.StatCount, error) {
	var rows []struct {
		Type   string
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&notificationDatamodel.Record{}).
		Select("type, status, COUNT(*) AS count").
		Group("type, status").
		Order("type, status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]notification.StatCount, 0, len(rows))
	for _, row := range rows {
		out = append(out, notification.StatCount{
			Type:   notification.Type(row.Type),
			Status: notification.Status(row.Status),
			Count:  row.Count,
		})
	}
	return out, nil
}

func toRecords(rows []notificationDatamodel.Record) []*notification.Record {
	out := make([]*notification.Record, 0, len(rows))
	for i := range rows {
		out = append(out, notification.RecordFromDataModel(&rows[i]))
	}
	return out
}
