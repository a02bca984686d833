package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"CapIot.telemetry/internal/identity"
	"CapIot.telemetry/internal/logging"
	"CapIot.telemetry/internal/models"
	"CapIot.telemetry/internal/repository"
)

// IngestionService turns broker messages into stored telemetry and alerts.
type IngestionService struct {
	resolver  identity.Resolver
	telemetry repository.TelemetryRepository
	pruner    *RetentionPruner
	evaluator *ThresholdEvaluator
	archive   repository.TelemetryArchive
	logger    zerolog.Logger
}

// NewIngestionService creates a new IngestionService. archive may be nil.
func NewIngestionService(
	resolver identity.Resolver,
	telemetry repository.TelemetryRepository,
	pruner *RetentionPruner,
	evaluator *ThresholdEvaluator,
	archive repository.TelemetryArchive,
	logger zerolog.Logger,
) *IngestionService {
	return &IngestionService{
		resolver:  resolver,
		telemetry: telemetry,
		pruner:    pruner,
		evaluator: evaluator,
		archive:   archive,
		logger:    logger.With().Str("component", "ingestion").Logger(),
	}
}

// Ingest parses raw, resolves the owning account and stores the readings.
// Malformed payloads and unknown credentials are logged and returned as
// models.ErrMalformedPayload and identity.ErrAccountNotFound.
func (s *IngestionService) Ingest(ctx context.Context, credential string, raw []byte, receivedAt time.Time) error {
	masked := logging.MaskCredential(credential)

	payload, err := models.ParsePayload(raw)
	if err != nil {
		s.logger.Warn().Err(err).Str("credential", masked).Msg("Dropping malformed payload")
		return err
	}

	accountID, err := s.resolver.Resolve(ctx, credential)
	if errors.Is(err, identity.ErrAccountNotFound) {
		s.logger.Warn().Str("tag", "security").Str("credential", masked).Msg("Dropping message for unregistered credential")
		return err
	}
	if err != nil {
		s.logger.Error().Err(err).Str("credential", masked).Msg("Failed to resolve credential")
		return err
	}

	return s.IngestForAccount(ctx, accountID, payload, receivedAt)
}

// IngestForAccount stores one sample for accountID stamped with receivedAt,
// prunes the history and evaluates thresholds. A payload without any known
// reading is ignored.
func (s *IngestionService) IngestForAccount(ctx context.Context, accountID uint, payload models.Payload, receivedAt time.Time) error {
	log := s.logger.With().Uint("account_id", accountID).Logger()
	if len(payload.Ignored) > 0 {
		log.Debug().Strs("ignored", payload.Ignored).Msg("Ignoring unknown payload keys")
	}
	if !payload.HasReadings() {
		log.Debug().Msg("Payload carries no readings, nothing stored")
		return nil
	}

	sample := payload.Sample(accountID, receivedAt.Unix())
	if err := s.telemetry.InsertSample(ctx, &sample); err != nil {
		log.Error().Err(err).Msg("Failed to store telemetry")
		return fmt.Errorf("ingest: %w", err)
	}

	if s.archive != nil {
		if err := s.archive.WriteSample(ctx, sample); err != nil {
			log.Warn().Err(err).Msg("Failed to archive telemetry")
		}
	}

	s.pruner.Prune(ctx, accountID)

	if err := s.evaluator.Evaluate(ctx, accountID, payload, receivedAt); err != nil {
		log.Error().Err(err).Msg("Threshold evaluation failed")
		return fmt.Errorf("ingest: %w", err)
	}
	return nil
}
