package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"CapIot.telemetry/internal/logging"
	"CapIot.telemetry/internal/models"
	"CapIot.telemetry/internal/repository"
)

// ErrPushFailed is returned when the device platform did not confirm a
// control change. Nothing is persisted in that case.
var ErrPushFailed = errors.New("control push failed")

// Pusher delivers a single attribute change to a credential's device.
type Pusher interface {
	PushAttribute(ctx context.Context, credential string, key models.Attribute, value any) error
}

// PusherFunc adapts an ordinary function to Pusher.
type PusherFunc func(ctx context.Context, credential string, key models.Attribute, value any) error

func (f PusherFunc) PushAttribute(ctx context.Context, credential string, key models.Attribute, value any) error {
	return f(ctx, credential, key, value)
}

// AttributeFetcher reads the client attributes a device last reported.
type AttributeFetcher interface {
	FetchClientAttributes(ctx context.Context, credential string) (map[string]any, error)
}

// ControlService keeps the stored control state in step with the device.
type ControlService struct {
	pusher   Pusher
	fetcher  AttributeFetcher
	controls repository.ControlRepository
	logger   zerolog.Logger
}

// NewControlService creates a new ControlService. fetcher may be nil, which
// disables SyncFromDevice.
func NewControlService(pusher Pusher, fetcher AttributeFetcher, controls repository.ControlRepository, logger zerolog.Logger) *ControlService {
	return &ControlService{
		pusher:   pusher,
		fetcher:  fetcher,
		controls: controls,
		logger:   logger.With().Str("component", "control").Logger(),
	}
}

// SetAttribute validates key and value, pushes the change to the device and
// persists it only once the push succeeded. Validation failures wrap
// models.ErrUnknownAttribute or models.ErrInvalidAttributeValue; a failed
// push returns ErrPushFailed.
func (s *ControlService) SetAttribute(ctx context.Context, credential string, accountID uint, key string, value any) error {
	attr, err := models.ParseAttribute(key, value)
	if err != nil {
		return err
	}

	log := s.logger.With().
		Uint("account_id", accountID).
		Str("credential", logging.MaskCredential(credential)).
		Str("attribute", key).
		Logger()

	if err := s.pusher.PushAttribute(ctx, credential, attr.Attribute, attr.Value); err != nil {
		log.Warn().Err(err).Msg("Control push failed, state not persisted")
		return fmt.Errorf("%w: %v", ErrPushFailed, err)
	}

	if err := s.controls.UpsertAttributes(ctx, accountID, attr); err != nil {
		log.Error().Err(err).Msg("Control pushed but not persisted")
		return err
	}
	log.Info().Interface("value", attr.Value).Msg("Control attribute updated")
	return nil
}

// GetControlState returns the account's control row, or the default state
// when the account has not configured anything.
func (s *ControlService) GetControlState(ctx context.Context, accountID uint) (models.ControlState, error) {
	state, err := s.controls.Get(ctx, accountID)
	if err != nil {
		return models.ControlState{}, err
	}
	if state == nil {
		return models.DefaultControlState(accountID), nil
	}
	return *state, nil
}

// SyncFromDevice copies the client attributes the device reports into the
// account's control row. Unrecognised or invalid values are skipped.
func (s *ControlService) SyncFromDevice(ctx context.Context, credential string, accountID uint) error {
	if s.fetcher == nil {
		return nil
	}
	reported, err := s.fetcher.FetchClientAttributes(ctx, credential)
	if err != nil {
		return err
	}

	var values []models.AttributeValue
	for _, attr := range models.ClientAttributes {
		raw, ok := reported[string(attr)]
		if !ok {
			continue
		}
		v, err := models.ParseAttribute(string(attr), raw)
		if err != nil {
			s.logger.Warn().Err(err).Uint("account_id", accountID).Msg("Skipping reported attribute")
			continue
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil
	}
	if err := s.controls.UpsertAttributes(ctx, accountID, values...); err != nil {
		return err
	}
	s.logger.Info().Uint("account_id", accountID).Int("attributes", len(values)).Msg("Control state synced from device")
	return nil
}
