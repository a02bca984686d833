package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"CapIot.telemetry/internal/models"
	"CapIot.telemetry/internal/repository"
)

// ThresholdEvaluator raises alerts for readings above the account's
// configured thresholds.
type ThresholdEvaluator struct {
	controls repository.ControlRepository
	alerts   repository.AlertRepository
	logger   zerolog.Logger
}

// NewThresholdEvaluator creates a new ThresholdEvaluator.
func NewThresholdEvaluator(controls repository.ControlRepository, alerts repository.AlertRepository, logger zerolog.Logger) *ThresholdEvaluator {
	return &ThresholdEvaluator{
		controls: controls,
		alerts:   alerts,
		logger:   logger.With().Str("component", "threshold").Logger(),
	}
}

// AlertMessage formats the message stored for a breached threshold.
func AlertMessage(reading models.ReadingType, value, threshold float64) string {
	unit := reading.Unit()
	return fmt.Sprintf("%s %.1f%s exceeds threshold %.1f%s", reading.Label(), value, unit, threshold, unit)
}

// Evaluate compares every reading in payload against its threshold. A value
// strictly greater than the threshold upserts the unread alert of that type.
// Accounts without a control row have no thresholds and are skipped. Each
// type is handled independently; failures are joined into the returned error.
func (e *ThresholdEvaluator) Evaluate(ctx context.Context, accountID uint, payload models.Payload, at time.Time) error {
	state, err := e.controls.Get(ctx, accountID)
	if err != nil {
		return fmt.Errorf("load thresholds: %w", err)
	}
	if state == nil {
		e.logger.Debug().Uint("account_id", accountID).Msg("No thresholds configured, skipping evaluation")
		return nil
	}

	var errs []error
	for _, reading := range payload.Readings() {
		threshold := state.Threshold(reading.Type)
		if threshold == nil || reading.Value <= *threshold {
			continue
		}

		alertType := reading.Type.AlertType()
		msg := AlertMessage(reading.Type, reading.Value, *threshold)
		if err := e.alerts.UpsertUnread(ctx, accountID, alertType, msg, at.Unix()); err != nil {
			e.logger.Error().Err(err).Uint("account_id", accountID).Str("type", string(alertType)).Msg("Failed to record alert")
			errs = append(errs, err)
			continue
		}
		e.logger.Info().Uint("account_id", accountID).Str("type", string(alertType)).Msg(msg)
	}
	return errors.Join(errs...)
}
