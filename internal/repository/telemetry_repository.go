package repository

import (
	"context"
	"errors"
	"fmt"

	"CapIot.telemetry/internal/models"
	"gorm.io/gorm"
)

// TelemetryRepository stores the bounded per-account sample history.
type TelemetryRepository interface {
	InsertSample(ctx context.Context, sample *models.TelemetrySample) error
	PruneSamples(ctx context.Context, accountID uint, keep int) (int64, error)
	LatestSample(ctx context.Context, accountID uint) (*models.TelemetrySample, error)
	RecentSamples(ctx context.Context, accountID uint, limit int) ([]models.TelemetrySample, error)
}

// GormTelemetryRepository implements TelemetryRepository on gorm.
type GormTelemetryRepository struct {
	db *gorm.DB
}

// NewTelemetryRepository creates a new GormTelemetryRepository.
func NewTelemetryRepository(db *gorm.DB) *GormTelemetryRepository {
	return &GormTelemetryRepository{db: db}
}

// InsertSample writes one sample and fills in its id.
func (r *GormTelemetryRepository) InsertSample(ctx context.Context, sample *models.TelemetrySample) error {
	if err := r.db.WithContext(ctx).Create(sample).Error; err != nil {
		return fmt.Errorf("insert telemetry for account %d: %w", sample.AccountID, err)
	}
	return nil
}

// PruneSamples deletes every sample of the account except the keep newest
// ones and returns the number of rows removed. Ties on time_stamp are broken
// by id so repeated runs select the same survivors.
func (r *GormTelemetryRepository) PruneSamples(ctx context.Context, accountID uint, keep int) (int64, error) {
	db := r.db.WithContext(ctx)
	newest := db.Model(&models.TelemetrySample{}).
		Select("id").
		Where("account_id = ?", accountID).
		Order("time_stamp DESC, id DESC").
		Limit(keep)
	survivors := db.Table("(?) AS newest", newest).Select("id")

	res := db.Where("account_id = ? AND id NOT IN (?)", accountID, survivors).
		Delete(&models.TelemetrySample{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune telemetry for account %d: %w", accountID, res.Error)
	}
	return res.RowsAffected, nil
}

// LatestSample returns the newest sample of the account, or nil when the
// account has none.
func (r *GormTelemetryRepository) LatestSample(ctx context.Context, accountID uint) (*models.TelemetrySample, error) {
	var sample models.TelemetrySample
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("time_stamp DESC, id DESC").
		First(&sample).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest telemetry for account %d: %w", accountID, err)
	}
	return &sample, nil
}

// RecentSamples returns up to limit samples, newest first.
func (r *GormTelemetryRepository) RecentSamples(ctx context.Context, accountID uint, limit int) ([]models.TelemetrySample, error) {
	var samples []models.TelemetrySample
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("time_stamp DESC, id DESC").
		Limit(limit).
		Find(&samples).Error
	if err != nil {
		return nil, fmt.Errorf("recent telemetry for account %d: %w", accountID, err)
	}
	return samples, nil
}
