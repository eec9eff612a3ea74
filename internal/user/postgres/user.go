package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/facilities-maintenance/internal"
	"github.com/frahmantamala/facilities-maintenance/internal/auth"
	userDatamodel "github.com/frahmantamala/facilities-maintenance/internal/core/datamodel/user"
	"github.com/frahmantamala/facilities-maintenance/internal/user"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*auth.Identity, error) {
	var row userDatamodel.Identity
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrUserNotFound
		}
		return nil, err
	}
	return user.FromDataModel(&row), nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*auth.Identity, error) {
	var row userDatamodel.Identity
	err := r.db.WithContext(ctx).Where("username = ?", auth.NormalizeUsername(username)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrUserNotFound
		}
		return nil, err
	}
	return user.FromDataModel(&row), nil
}

func (r *UserRepository) Create(ctx context.Context, identity *auth.Identity) error {
	identity.Username = auth.NormalizeUsername(identity.Username)
	if identity.Status == "" {
		identity.Status = auth.IdentityActive
	}
	if identity.Role == "" {
		identity.Role = auth.RoleUser
	}

	row := user.ToDataModel(identity)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	identity.ID = row.ID
	identity.CreatedAt = row.CreatedAt
	identity.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&userDatamodel.Identity{}).
		Where("id = ?", id).
		Update("last_login_at", at).Error
}

func (r *UserRepository) UpdateRole(ctx context.Context, id int64, role auth.Role) error {
	res := r.db.WithContext(ctx).Model(&userDatamodel.Identity{}).
		Where("id = ?", id).
		Update("role", string(role))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) UpdateStatus(ctx context.Context, id int64, status auth.IdentityStatus) error {
	res := r.db.WithContext(ctx).Model(&userDatamodel.Identity{}).
		Where("id = ?", id).
		Update("status", string(status))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context, f user.ListFilter) ([]*auth.Identity, error) {
	q := r.db.WithContext(ctx).Model(&userDatamodel.Identity{})
	if f.Role != "" {
		q = q.Where("role = ?", string(f.Role))
	}

	var rows []*userDatamodel.Identity
	if err := q.Order("username ASC").Limit(f.Limit).Offset(f.Offset).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]*auth.Identity, 0, len(rows))
	for _, row := range rows {
		out = append(out, user.FromDataModel(row))
	}
	return out, nil
}
