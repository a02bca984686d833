package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CapIot.telemetry/internal/identity"
	"CapIot.telemetry/internal/models"
)

func TestIngestStoresSampleWithReceiveTime(t *testing.T) {
	s := newStack(t)
	id := s.createAccount(t, "a@example.com", "A1")
	at := time.Unix(1700000000, 0)

	err := s.ingestion.Ingest(context.Background(), "A1", []byte(`{"temperature": 0, "pm25": "12.5", "ts": 1, "fanSpeed": 3}`), at)
	require.NoError(t, err)

	latest, err := s.telemetry.LatestSample(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(1700000000), latest.Timestamp)
	require.NotNil(t, latest.Temperature)
	assert.Zero(t, *latest.Temperature)
	assert.Equal(t, 12.5, *latest.PM25)
	assert.Nil(t, latest.Humidity)

	require.Len(t, s.archive.samples, 1)
	assert.Equal(t, id, s.archive.samples[0].AccountID)
}

func TestIngestRetainsNewestTen(t *testing.T) {
	s := newStack(t)
	id := s.createAccount(t, "a@example.com", "A1")
	base := time.Unix(1700000000, 0)

	for i := 0; i < 15; i++ {
		raw := []byte(fmt.Sprintf(`{"humidity": %d}`, 40+i))
		require.NoError(t, s.ingestion.Ingest(context.Background(), "A1", raw, base.Add(time.Duration(i)*time.Second)))
	}

	samples, err := s.telemetry.RecentSamples(context.Background(), id, 100)
	require.NoError(t, err)
	require.Len(t, samples, 10)
	assert.Equal(t, base.Add(14*time.Second).Unix(), samples[0].Timestamp)
	assert.Equal(t, base.Add(5*time.Second).Unix(), samples[9].Timestamp)
}

func TestIngestUnknownCredential(t *testing.T) {
	s := newStack(t)
	s.createAccount(t, "a@example.com", "A1")

	err := s.ingestion.Ingest(context.Background(), "ZZ", []byte(`{"temperature": 30}`), time.Now())
	assert.ErrorIs(t, err, identity.ErrAccountNotFound)

	var rows int64
	require.NoError(t, s.db.Model(&models.TelemetrySample{}).Count(&rows).Error)
	assert.Zero(t, rows)
}

func TestIngestMalformedPayload(t *testing.T) {
	s := newStack(t)
	s.createAccount(t, "a@example.com", "A1")

	for _, raw := range []string{`[1,2]`, `"text"`, `{"temperature": true}`, `{`} {
		err := s.ingestion.Ingest(context.Background(), "A1", []byte(raw), time.Now())
		assert.ErrorIs(t, err, models.ErrMalformedPayload, raw)
	}
}

func TestIngestWithoutReadingsStoresNothing(t *testing.T) {
	s := newStack(t)
	id := s.createAccount(t, "a@example.com", "A1")

	require.NoError(t, s.ingestion.Ingest(context.Background(), "A1", []byte(`{"ledState": true}`), time.Now()))

	latest, err := s.telemetry.LatestSample(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, latest)
	assert.Empty(t, s.archive.samples)
}

func TestIngestArchiveFailureIsNotFatal(t *testing.T) {
	s := newStack(t)
	id := s.createAccount(t, "a@example.com", "A1")
	s.archive.err = errors.New("influx down")

	require.NoError(t, s.ingestion.Ingest(context.Background(), "A1", []byte(`{"no2": 10}`), time.Now()))

	latest, err := s.telemetry.LatestSample(context.Background(), id)
	require.NoError(t, err)
	assert.NotNil(t, latest)
}

func TestIngestRaisesAlerts(t *testing.T) {
	s := newStack(t)
	id := s.createAccount(t, "a@example.com", "A1")
	s.setThreshold(t, id, models.AttrTempThreshold, 35)

	require.NoError(t, s.ingestion.Ingest(context.Background(), "A1", []byte(`{"temperature": 36}`), time.Unix(100, 0)))

	alerts, err := s.alerts.ListAll(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertTemp, alerts[0].Type)
	assert.Equal(t, int64(100), alerts[0].Timestamp)
}

func TestRetentionPrunerSwallowsErrors(t *testing.T) {
	p := NewRetentionPruner(failingTelemetry{}, 10, zerolog.Nop())
	assert.Zero(t, p.Prune(context.Background(), 1))
}
