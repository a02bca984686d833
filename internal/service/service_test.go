package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"CapIot.telemetry/internal/identity"
	"CapIot.telemetry/internal/models"
	"CapIot.telemetry/internal/repository"
)

const (
	testKeepTelemetry = 10
	testKeepAlerts    = 10
)

type stack struct {
	db        *gorm.DB
	accounts  *repository.GormAccountRepository
	telemetry *repository.GormTelemetryRepository
	alerts    *repository.GormAlertRepository
	controls  *repository.GormControlRepository
	archive   *fakeArchive
	ingestion *IngestionService
	evaluator *ThresholdEvaluator
}

func newStack(t *testing.T) *stack {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repository.OpenDatabase("sqlite", fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))
	t.Cleanup(func() { _ = repository.CloseDatabase(db) })

	s := &stack{
		db:        db,
		accounts:  repository.NewAccountRepository(db),
		telemetry: repository.NewTelemetryRepository(db),
		alerts:    repository.NewAlertRepository(db),
		controls:  repository.NewControlRepository(db),
		archive:   &fakeArchive{},
	}
	logger := zerolog.Nop()
	s.evaluator = NewThresholdEvaluator(s.controls, s.alerts, logger)
	s.ingestion = NewIngestionService(
		identity.NewDBResolver(s.accounts),
		s.telemetry,
		NewRetentionPruner(s.telemetry, testKeepTelemetry, logger),
		s.evaluator,
		s.archive,
		logger,
	)
	return s
}

func (s *stack) createAccount(t *testing.T, email, credential string) uint {
	t.Helper()
	acc := models.Account{Email: email, PasswordHash: "-", Credential: credential}
	require.NoError(t, s.db.Create(&acc).Error)
	return acc.ID
}

func (s *stack) setThreshold(t *testing.T, accountID uint, attr models.Attribute, value float64) {
	t.Helper()
	require.NoError(t, s.controls.UpsertAttributes(context.Background(), accountID, models.AttributeValue{Attribute: attr, Value: value}))
}

type fakeArchive struct {
	mu      sync.Mutex
	samples []models.TelemetrySample
	err     error
}

func (f *fakeArchive) WriteSample(_ context.Context, sample models.TelemetrySample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.samples = append(f.samples, sample)
	return nil
}

type failingTelemetry struct {
	repository.TelemetryRepository
}

func (failingTelemetry) PruneSamples(context.Context, uint, int) (int64, error) {
	return 0, errors.New("disk full")
}

func ptr(v float64) *float64 { return &v }
