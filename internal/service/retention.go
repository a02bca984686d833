package service

import (
	"context"

	"github.com/rs/zerolog"

	"CapIot.telemetry/internal/repository"
)

// RetentionPruner caps the telemetry history of an account at the newest
// keep samples.
type RetentionPruner struct {
	telemetry repository.TelemetryRepository
	keep      int
	logger    zerolog.Logger
}

// NewRetentionPruner creates a new RetentionPruner.
func NewRetentionPruner(telemetry repository.TelemetryRepository, keep int, logger zerolog.Logger) *RetentionPruner {
	return &RetentionPruner{
		telemetry: telemetry,
		keep:      keep,
		logger:    logger.With().Str("component", "retention").Logger(),
	}
}

// Prune deletes samples beyond the cap and returns how many were removed.
// Failures are logged and reported as zero; the next prune catches up.
func (p *RetentionPruner) Prune(ctx context.Context, accountID uint) int64 {
	removed, err := p.telemetry.PruneSamples(ctx, accountID, p.keep)
	if err != nil {
		p.logger.Error().Err(err).Uint("account_id", accountID).Msg("Failed to prune telemetry")
		return 0
	}
	if removed > 0 {
		p.logger.Debug().Uint("account_id", accountID).Int64("removed", removed).Msg("Pruned telemetry")
	}
	return removed
}
