package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	calltypeDatamodel "github.com/frahmantamala/facilities-maintenance/internal/core/datamodel/calltype"
)

type CallTypeRepository struct {
	db *gorm.DB
}

func NewCallTypeRepository(db *gorm.DB) *CallTypeRepository {
	return &CallTypeRepository{db: db}
}

func (r *CallTypeRepository) GetAll(ctx context.Context) ([]*calltypeDatamodel.CallType, error) {
	var rows []*calltypeDatamodel.CallType
	err := r.db.WithContext(ctx).Order("name ASC").Find(&rows).Error
	return rows, err
}

func (r *CallTypeRepository) GetByName(ctx context.Context, name string) (*calltypeDatamodel.CallType, error) {
	var row calltypeDatamodel.CallType
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *CallTypeRepository) Create(ctx context.Context, ct *calltypeDatamodel.CallType) error {
	return r.db.WithContext(ctx).Create(ct).Error
}

func (r *CallTypeRepository) Deactivate(ctx context.Context, name string) error {
	return r.db.WithContext(ctx).Model(&calltypeDatamodel.CallType{}).
		Where("name = ?", name).
		Update("is_active", false).Error
}
