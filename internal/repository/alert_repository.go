package repository

import (
	"context"
	"fmt"

	"CapIot.telemetry/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AlertRepository stores the deduplicated alert log.
type AlertRepository interface {
	UpsertUnread(ctx context.Context, accountID uint, alertType models.AlertType, message string, timestamp int64) error
	CountUnread(ctx context.Context, accountID uint) (int64, error)
	ListAll(ctx context.Context, accountID uint) ([]models.Alert, error)
	MarkAllAsReadAndPrune(ctx context.Context, accountID uint, keep int) (marked, pruned int64, err error)
}

// GormAlertRepository implements AlertRepository on gorm.
type GormAlertRepository struct {
	db *gorm.DB
}

// NewAlertRepository creates a new GormAlertRepository.
func NewAlertRepository(db *gorm.DB) *GormAlertRepository {
	return &GormAlertRepository{db: db}
}

// unreadConflict targets idx_alerts_log_unread. The predicate is written as a
// literal so it matches the partial index definition exactly.
var unreadConflict = clause.OnConflict{
	Columns:     []clause.Column{{Name: "account_id"}, {Name: "type"}},
	TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "is_read = false"}}},
	DoUpdates:   clause.AssignmentColumns([]string{"message", "time_stamp"}),
}

// UpsertUnread inserts an unread alert, or refreshes message and timestamp of
// the existing unread alert of the same type, in one statement.
func (r *GormAlertRepository) UpsertUnread(ctx context.Context, accountID uint, alertType models.AlertType, message string, timestamp int64) error {
	alert := models.Alert{
		AccountID: accountID,
		Type:      alertType,
		Message:   message,
		IsRead:    false,
		Timestamp: timestamp,
	}
	if err := r.db.WithContext(ctx).Clauses(unreadConflict).Create(&alert).Error; err != nil {
		return fmt.Errorf("upsert %s alert for account %d: %w", alertType, accountID, err)
	}
	return nil
}

// CountUnread returns the number of unread alerts of the account.
func (r *GormAlertRepository) CountUnread(ctx context.Context, accountID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Alert{}).
		Where("account_id = ? AND is_read = ?", accountID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count unread alerts for account %d: %w", accountID, err)
	}
	return count, nil
}

// ListAll returns every alert of the account, newest first.
func (r *GormAlertRepository) ListAll(ctx context.Context, accountID uint) ([]models.Alert, error) {
	alerts := []models.Alert{}
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("time_stamp DESC, log_id DESC").
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("list alerts for account %d: %w", accountID, err)
	}
	return alerts, nil
}

// MarkAllAsReadAndPrune marks every unread alert of the account as read and
// then deletes read alerts beyond the keep newest. Both steps run in one
// transaction; if either fails nothing is changed.
func (r *GormAlertRepository) MarkAllAsReadAndPrune(ctx context.Context, accountID uint, keep int) (marked, pruned int64, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Alert{}).
			Where("account_id = ? AND is_read = ?", accountID, false).
			Update("is_read", true)
		if res.Error != nil {
			return fmt.Errorf("mark alerts read: %w", res.Error)
		}
		marked = res.RowsAffected

		newest := tx.Model(&models.Alert{}).
			Select("log_id").
			Where("account_id = ? AND is_read = ?", accountID, true).
			Order("time_stamp DESC, log_id DESC").
			Limit(keep)
		survivors := tx.Table("(?) AS newest", newest).Select("log_id")

		res = tx.Where("account_id = ? AND is_read = ? AND log_id NOT IN (?)", accountID, true, survivors).
			Delete(&models.Alert{})
		if res.Error != nil {
			return fmt.Errorf("prune read alerts: %w", res.Error)
		}
		pruned = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("mark all alerts read for account %d: %w", accountID, err)
	}
	return marked, pruned, nil
}
