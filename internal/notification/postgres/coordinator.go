package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/frahmantamala/facilities-maintenance/internal/call"
	notificationDatamodel "github.com/frahmantamala/facilities-maintenance/internal/core/datamodel/notification"
	"github.com/frahmantamala/facilities-maintenance/internal/notification"
)

type CoordinatorRepository struct {
	db *gorm.DB
}

func NewCoordinatorRepository(db *gorm.DB) *CoordinatorRepository {
	return &CoordinatorRepository{db: db}
}

func (r *CoordinatorRepository) ListActiveByRegion(ctx context.Context, region call.Region) ([]*notification.Coordinator, error) {
	var rows []notificationDatamodel.Coordinator
	err := r.db.WithContext(ctx).
		Where("region = ? AND is_active = ?", string(region), true).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toCoordinators(rows), nil
}

func (r *CoordinatorRepository) List(ctx context.Context, includeInactive bool) ([]*notification.Coordinator, error) {
	q := r.db.WithContext(ctx)
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}

	var rows []notificationDatamodel.Coordinator
	if err := q.Order("region ASC").Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toCoordinators(rows), nil
}

func (r *CoordinatorRepository) Create(ctx context.Context, c *notification.Coordinator) error {
	row := notification.CoordinatorToDataModel(c)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	c.ID = row.ID
	return nil
}

func (r *CoordinatorRepository) Deactivate(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Model(&notificationDatamodel.Coordinator{}).
		Where("id = ?", id).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notification.ErrCoordinatorNotFound
	}
	return nil
}

func toCoordinators(rows []notificationDatamodel.Coordinator) []*notification.Coordinator {
	out := make([]*notification.Coordinator, 0, len(rows))
	for i := range rows {
		out = append(out, notification.CoordinatorFromDataModel(&rows[i]))
	}
	return out
}
