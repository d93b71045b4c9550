package repository

import (
	"context"
	"fmt"

	"github.com/screenlens/demo-gateway/internal/models"
	"github.com/screenlens/demo-gateway/internal/storage"
	"gorm.io/gorm"
)

type RoleRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Role, error)
	FindByName(ctx context.Context, name string) (*models.Role, error)
	// Seed creates the built-in tiers if they are missing. Idempotent.
	Seed(ctx context.Context, guestDailyLimit, guestVelocityLimit int64) error
}

type roleRepository struct {
	db *storage.Postgres
}

func NewRoleRepository(db *storage.Postgres) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) FindByID(ctx context.Context, id uint) (*models.Role, error) {
	var role models.Role
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&role).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &role, err
}

func (r *roleRepository) FindByName(ctx context.Context, name string) (*models.Role, error) {
	var role models.Role
	err := r.db.DB.WithContext(ctx).
		Where("name = ?", name).
		First(&role).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &role, err
}

func (r *roleRepository) Seed(ctx context.Context, guestDailyLimit, guestVelocityLimit int64) error {
	builtins := []models.Role{
		{
			Name:          models.RoleBanned,
			DailyLimit:    0,
			VelocityLimit: 0,
			Description:   "Blocked installations; every metered request is rejected",
		},
		{
			Name:          models.RoleGuest,
			DailyLimit:    guestDailyLimit,
			VelocityLimit: guestVelocityLimit,
			Description:   "Default tier for anonymous installations",
		},
		{
			Name:          models.RoleAdmin,
			DailyLimit:    models.UnlimitedQuota,
			VelocityLimit: models.UnlimitedQuota,
			Description:   "Unmetered internal installations",
		},
	}

	for _, role := range builtins {
		err := r.db.DB.WithContext(ctx).
			Where(models.Role{Name: role.Name}).
			FirstOrCreate(&role).Error
		if err != nil {
			return fmt.Errorf("failed to seed role %s: %w", role.Name, err)
		}
	}

	return nil
}
