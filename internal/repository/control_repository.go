package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CapIot.telemetry/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ControlRepository stores one control-state row per account.
type ControlRepository interface {
	Get(ctx context.Context, accountID uint) (*models.ControlState, error)
	UpsertAttributes(ctx context.Context, accountID uint, values ...models.AttributeValue) error
}

// GormControlRepository implements ControlRepository on gorm.
type GormControlRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewControlRepository creates a new GormControlRepository.
func NewControlRepository(db *gorm.DB) *GormControlRepository {
	return &GormControlRepository{db: db, now: time.Now}
}

// Get returns the account's control state, or nil when no row exists yet.
func (r *GormControlRepository) Get(ctx context.Context, accountID uint) (*models.ControlState, error) {
	var state models.ControlState
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load control state for account %d: %w", accountID, err)
	}
	return &state, nil
}

// UpsertAttributes writes the given columns of the account's row. A missing
// row is created from models.NewControlRow with the values applied, leaving
// every other threshold NULL; an existing row only has the given columns
// touched.
func (r *GormControlRepository) UpsertAttributes(ctx context.Context, accountID uint, values ...models.AttributeValue) error {
	if len(values) == 0 {
		return nil
	}

	row := models.NewControlRow(accountID)
	row.UpdatedAt = r.now()
	assignments := map[string]any{"updated_at": row.UpdatedAt}
	for _, v := range values {
		v.Apply(&row)
		assignments[v.Attribute.Column()] = v.Value
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert control state for account %d: %w", accountID, err)
	}
	return nil
}
