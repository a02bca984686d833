package service

import (
	"context"
	"time"

	"CapIot.telemetry/internal/models"
	"CapIot.telemetry/internal/repository"
)

// DataService serves the dashboard read views of an account.
type DataService struct {
	telemetry       repository.TelemetryRepository
	controls        repository.ControlRepository
	defaultInterval int
	now             func() time.Time
}

// NewDataService creates a new DataService. defaultInterval is the reporting
// interval, in seconds, assumed for accounts that have not set one.
func NewDataService(telemetry repository.TelemetryRepository, controls repository.ControlRepository, defaultInterval int) *DataService {
	if defaultInterval <= 0 {
		defaultInterval = models.DefaultIntervalSeconds
	}
	return &DataService{telemetry: telemetry, controls: controls, defaultInterval: defaultInterval, now: time.Now}
}

// GetLatestData returns the newest readings of the account together with
// the status derived from the configured reporting interval.
func (s *DataService) GetLatestData(ctx context.Context, accountID uint) (models.LatestData, error) {
	interval := s.defaultInterval
	state, err := s.controls.Get(ctx, accountID)
	if err != nil {
		return models.LatestData{}, err
	}
	if state != nil && state.TimeInterval > 0 {
		interval = state.TimeInterval
	}

	data := models.LatestData{Status: models.StatusOffline, IntervalTime: interval}
	sample, err := s.telemetry.LatestSample(ctx, accountID)
	if err != nil {
		return models.LatestData{}, err
	}
	if sample == nil {
		return data, nil
	}

	ts := sample.Timestamp
	data.Temperature = sample.Temperature
	data.Humidity = sample.Humidity
	data.NO2 = sample.NO2
	data.PM10 = sample.PM10
	data.PM25 = sample.PM25
	data.LastUpdated = &ts
	data.Status = Status(&ts, interval, s.now())
	return data, nil
}

// GetThresholds returns the configured thresholds, or nil when the account
// has no control row. Defaults are not substituted.
func (s *DataService) GetThresholds(ctx context.Context, accountID uint) (*models.Thresholds, error) {
	state, err := s.controls.Get(ctx, accountID)
	if err != nil || state == nil {
		return nil, err
	}
	t := state.Thresholds()
	return &t, nil
}

// GetRecentData returns up to limit stored samples, newest first.
func (s *DataService) GetRecentData(ctx context.Context, accountID uint, limit int) ([]models.TelemetrySample, error) {
	samples, err := s.telemetry.RecentSamples(ctx, accountID, limit)
	if err != nil {
		return nil, err
	}
	if samples == nil {
		samples = []models.TelemetrySample{}
	}
	return samples, nil
}
