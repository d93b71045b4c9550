package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/screenlens/demo-gateway/internal/models"
	"github.com/screenlens/demo-gateway/internal/storage"
)

type RequestLogRepository interface {
	Create(ctx context.Context, log *models.RequestLog) error
	CreateBatch(ctx context.Context, logs []models.RequestLog) error
	FindByIdentity(ctx context.Context, identityID uuid.UUID, from, to time.Time, limit, offset int) ([]models.RequestLog, error)
	CountByTimeRange(ctx context.Context, from, to time.Time) (int64, error)
	CountByStatusCodeRange(ctx context.Context, minCode, maxCode int, from, to time.Time) (int64, error)
	CountSince(ctx context.Context, identityID uuid.UUID, since time.Time) (int64, error)
	GetAverageResponseTime(ctx context.Context, from, to time.Time) (float64, error)
	TopIdentities(ctx context.Context, from, to time.Time, limit int) ([]IdentityRequestCount, error)
}

// IdentityRequestCount is one row of the per-identity velocity review.
type IdentityRequestCount struct {
	IdentityID uuid.UUID `json:"identity_id"`
	Count      int64     `json:"count"`
}

type requestLogRepository struct {
	db *storage.Postgres
}

func NewRequestLogRepository(db *storage.Postgres) RequestLogRepository {
	return &requestLogRepository{db: db}
}

// Inserts a new request log
func (r *requestLogRepository) Create(ctx context.Context, log *models.RequestLog) error {
	return r.db.DB.WithContext(ctx).Create(log).Error
}

// Inserts multiple request logs (for batch insertion)
func (r *requestLogRepository) CreateBatch(ctx context.Context, logs []models.RequestLog) error {
	if len(logs) == 0 {
		return nil
	}

	return r.db.DB.WithContext(ctx).Create(&logs).Error
}

func (r *requestLogRepository) FindByIdentity(ctx context.Context, identityID uuid.UUID, from, to time.Time, limit, offset int) ([]models.RequestLog, error) {
	var logs []models.RequestLog
	err := r.db.DB.WithContext(ctx).
		Where("identity_id = ? AND timestamp BETWEEN ? AND ?", identityID, from, to).
		Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error

	return logs, err
}

func (r *requestLogRepository) CountByTimeRange(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.RequestLog{}).
		Where("timestamp BETWEEN ? AND ?", from, to).
		Count(&count).Error

	return count, err
}

func (r *requestLogRepository) CountByStatusCodeRange(ctx context.Context, minCode, maxCode int, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.RequestLog{}).
		Where("status_code BETWEEN ? AND ? AND timestamp BETWEEN ? AND ?", minCode, maxCode, from, to).
		Count(&count).Error

	return count, err
}

func (r *requestLogRepository) CountSince(ctx context.Context, identityID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.RequestLog{}).
		Where("identity_id = ? AND timestamp >= ?", identityID, since).
		Count(&count).Error

	return count, err
}

func (r *requestLogRepository) GetAverageResponseTime(ctx context.Context, from, to time.Time) (float64, error) {
	var avg *float64
	err := r.db.DB.WithContext(ctx).
		Model(&models.RequestLog{}).
		Select("AVG(response_time_ms)").
		Where("timestamp BETWEEN ? AND ?", from, to).
		Scan(&avg).Error

	if err != nil || avg == nil {
		return 0, err
	}

	return *avg, nil
}

func (r *requestLogRepository) TopIdentities(ctx context.Context, from, to time.Time, limit int) ([]IdentityRequestCount, error) {
	var rows []IdentityRequestCount
	err := r.db.DB.WithContext(ctx).
		Model(&models.RequestLog{}).
		Select("identity_id, COUNT(*) as count").
		Where("identity_id IS NOT NULL AND timestamp BETWEEN ? AND ?", from, to).
		Group("identity_id").
		Order("count DESC").
		Limit(limit).
		Scan(&rows).Error

	return rows, err
}
