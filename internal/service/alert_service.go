package service

import (
	"context"

	"github.com/rs/zerolog"

	"CapIot.telemetry/internal/models"
	"CapIot.telemetry/internal/repository"
)

// AlertService exposes the alert log of an account.
type AlertService struct {
	alerts repository.AlertRepository
	keep   int
	logger zerolog.Logger
}

// NewAlertService creates a new AlertService that keeps the keep most recent
// read alerts.
func NewAlertService(alerts repository.AlertRepository, keep int, logger zerolog.Logger) *AlertService {
	return &AlertService{
		alerts: alerts,
		keep:   keep,
		logger: logger.With().Str("component", "alerts").Logger(),
	}
}

func (s *AlertService) GetUnreadAlertCount(ctx context.Context, accountID uint) (int64, error) {
	return s.alerts.CountUnread(ctx, accountID)
}

func (s *AlertService) GetAllAlerts(ctx context.Context, accountID uint) ([]models.Alert, error) {
	return s.alerts.ListAll(ctx, accountID)
}

// MarkAllAsReadAndPrune marks every alert read and trims read alerts to the
// retention cap in one transaction.
func (s *AlertService) MarkAllAsReadAndPrune(ctx context.Context, accountID uint) error {
	marked, pruned, err := s.alerts.MarkAllAsReadAndPrune(ctx, accountID, s.keep)
	if err != nil {
		s.logger.Error().Err(err).Uint("account_id", accountID).Msg("Mark all alerts read failed")
		return err
	}
	s.logger.Info().Uint("account_id", accountID).Int64("marked", marked).Int64("pruned", pruned).Msg("Marked alerts read")
	return nil
}
