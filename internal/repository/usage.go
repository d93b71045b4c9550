package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/screenlens/demo-gateway/internal/models"
	"github.com/screenlens/demo-gateway/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UsageRepository manages the per-identity daily counters. The counters are
// the only shared mutable state between gateway instances, so all writes here
// must be single atomic statements rather than read-modify-write pairs.
type UsageRepository interface {
	// Get returns the identity's usage count for the given day; a missing row
	// reads as zero.
	Get(ctx context.Context, identityID uuid.UUID, date string) (int64, error)

	// DeviceTotal sums today's usage across every identity whose stored
	// signature matches. Used for the pre-registration device-level cap.
	DeviceTotal(ctx context.Context, deviceSignature, date string) (int64, error)

	// IncrementWithin adds n to the identity's counter for the day only if
	// the result stays within limit. Returns the updated count and whether
	// the increment was applied. The check and the add are one statement.
	IncrementWithin(ctx context.Context, identityID uuid.UUID, date string, n, limit int64) (int64, bool, error)

	// Increment adds n unconditionally (unlimited roles) and returns the
	// updated count.
	Increment(ctx context.Context, identityID uuid.UUID, date string, n int64) (int64, error)
}

type usageRepository struct {
	db *storage.Postgres
}

func NewUsageRepository(db *storage.Postgres) UsageRepository {
	return &usageRepository{db: db}
}

func (r *usageRepository) Get(ctx context.Context, identityID uuid.UUID, date string) (int64, error) {
	var usage models.DailyUsage
	err := r.db.DB.WithContext(ctx).
		Where("identity_id = ? AND usage_date = ?", identityID, date).
		First(&usage).Error

	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read usage: %w", err)
	}

	return usage.UsageCount, nil
}

func (r *usageRepository) DeviceTotal(ctx context.Context, deviceSignature, date string) (int64, error) {
	var total *int64
	err := r.db.DB.WithContext(ctx).
		Table("daily_usage").
		Select("SUM(daily_usage.usage_count)").
		Joins("JOIN identities ON identities.id = daily_usage.identity_id").
		Where("identities.device_signature = ? AND daily_usage.usage_date = ?", deviceSignature, date).
		Scan(&total).Error

	if err != nil {
		return 0, fmt.Errorf("failed to read device usage: %w", err)
	}
	if total == nil {
		return 0, nil
	}

	return *total, nil
}

func (r *usageRepository) IncrementWithin(ctx context.Context, identityID uuid.UUID, date string, n, limit int64) (int64, bool, error) {
	now := time.Now().UTC()

	applied, err := r.conditionalUpdate(ctx, identityID, date, n, limit, now)
	if err != nil {
		return 0, false, err
	}

	if !applied {
		if n > limit {
			return r.currentWith(ctx, identityID, date, false)
		}

		// No row for today yet, or the limit was hit. Try to create the
		// day's row; ON CONFLICT DO NOTHING means a concurrent creator wins
		// and we fall back to one more conditional update.
		res := r.db.DB.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "identity_id"}, {Name: "usage_date"}},
				DoNothing: true,
			}).
			Create(&models.DailyUsage{
				IdentityID: identityID,
				UsageDate:  date,
				UsageCount: n,
				LastUsedAt: now,
			})
		if res.Error != nil {
			return 0, false, fmt.Errorf("failed to create usage row: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return n, true, nil
		}

		applied, err = r.conditionalUpdate(ctx, identityID, date, n, limit, now)
		if err != nil {
			return 0, false, err
		}
	}

	return r.currentWith(ctx, identityID, date, applied)
}

func (r *usageRepository) conditionalUpdate(ctx context.Context, identityID uuid.UUID, date string, n, limit int64, now time.Time) (bool, error) {
	res := r.db.DB.WithContext(ctx).
		Model(&models.DailyUsage{}).
		Where("identity_id = ? AND usage_date = ? AND usage_count + ? <= ?", identityID, date, n, limit).
		Updates(map[string]interface{}{
			"usage_count":  gorm.Expr("usage_count + ?", n),
			"last_used_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to increment usage: %w", res.Error)
	}

	return res.RowsAffected > 0, nil
}

func (r *usageRepository) currentWith(ctx context.Context, identityID uuid.UUID, date string, applied bool) (int64, bool, error) {
	count, err := r.Get(ctx, identityID, date)
	if err != nil {
		return 0, false, err
	}
	return count, applied, nil
}

func (r *usageRepository) Increment(ctx context.Context, identityID uuid.UUID, date string, n int64) (int64, error) {
	now := time.Now().UTC()

	err := r.db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "identity_id"}, {Name: "usage_date"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"usage_count":  gorm.Expr("daily_usage.usage_count + ?", n),
				"last_used_at": now,
			}),
		}).
		Create(&models.DailyUsage{
			IdentityID: identityID,
			UsageDate:  date,
			UsageCount: n,
			LastUsedAt: now,
		}).Error
	if err != nil {
		return 0, fmt.Errorf("failed to increment usage: %w", err)
	}

	return r.Get(ctx, identityID, date)
}
