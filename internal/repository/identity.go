package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/screenlens/demo-gateway/internal/models"
	"github.com/screenlens/demo-gateway/internal/storage"
	"gorm.io/gorm"
)

// IdentityRepository manages the one-row-per-installation identity records.
type IdentityRepository interface {
	FindByClientToken(ctx context.Context, clientToken string) (*models.Identity, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	Create(ctx context.Context, identity *models.Identity) error
	UpdateLastSeen(ctx context.Context, id uuid.UUID) error
	UpdateRole(ctx context.Context, id uuid.UUID, roleID uint, banReason *string) error
	List(ctx context.Context, limit, offset int) ([]models.Identity, error)
	CountByRole(ctx context.Context, roleID uint) (int64, error)
}

type identityRepository struct {
	db *storage.Postgres
}

func NewIdentityRepository(db *storage.Postgres) IdentityRepository {
	return &identityRepository{db: db}
}

func (r *identityRepository) FindByClientToken(ctx context.Context, clientToken string) (*models.Identity, error) {
	var identity models.Identity
	err := r.db.DB.WithContext(ctx).
		Preload("Role").
		Where("client_token = ?", clientToken).
		First(&identity).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &identity, err
}

func (r *identityRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	var identity models.Identity
	err := r.db.DB.WithContext(ctx).
		Preload("Role").
		Where("id = ?", id).
		First(&identity).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &identity, err
}

func (r *identityRepository) Create(ctx context.Context, identity *models.Identity) error {
	return r.db.DB.WithContext(ctx).Create(identity).Error
}

func (r *identityRepository) UpdateLastSeen(ctx context.Context, id uuid.UUID) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.Identity{}).
		Where("id = ?", id).
		Update("last_seen_at", time.Now().UTC()).Error
}

func (r *identityRepository) UpdateRole(ctx context.Context, id uuid.UUID, roleID uint, banReason *string) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.Identity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"role_id":    roleID,
			"ban_reason": banReason,
		}).Error
}

func (r *identityRepository) List(ctx context.Context, limit, offset int) ([]models.Identity, error) {
	var identities []models.Identity
	err := r.db.DB.WithContext(ctx).
		Preload("Role").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&identities).Error

	return identities, err
}

func (r *identityRepository) CountByRole(ctx context.Context, roleID uint) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.Identity{}).
		Where("role_id = ?", roleID).
		Count(&count).Error

	return count, err
}
