package repository

import (
	"context"
	"errors"
	"fmt"

	"CapIot.telemetry/internal/models"
	"gorm.io/gorm"
)

// AccountRepository reads the externally owned accounts table.
type AccountRepository interface {
	FindIDByCredential(ctx context.Context, credential string) (uint, error)
	FindByEmail(ctx context.Context, email string) (models.Account, error)
}

// GormAccountRepository implements AccountRepository on gorm.
type GormAccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new GormAccountRepository.
func NewAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

// FindIDByCredential returns the id of the account owning credential, or
// ErrNotFound.
func (r *GormAccountRepository) FindIDByCredential(ctx context.Context, credential string) (uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("credential = ?", credential).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("lookup account by credential: %w", err)
	}
	if len(ids) == 0 {
		return 0, ErrNotFound
	}
	return ids[0], nil
}

// FindByEmail returns the account registered with email, or ErrNotFound.
func (r *GormAccountRepository) FindByEmail(ctx context.Context, email string) (models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Account{}, ErrNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("lookup account by email: %w", err)
	}
	return account, nil
}
