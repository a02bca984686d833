package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"CapIot.telemetry/internal/models"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
)

// TelemetryArchive receives every stored sample for history beyond the
// relational retention cap.
type TelemetryArchive interface {
	WriteSample(ctx context.Context, sample models.TelemetrySample) error
}

// InfluxDBRepository archives samples into an InfluxDB bucket.
type InfluxDBRepository struct {
	client influxdb2.Client
	org    string
	bucket string
}

// NewInfluxDBRepository creates a new InfluxDBRepository.
func NewInfluxDBRepository(url, token, org, bucket string) *InfluxDBRepository {
	return &InfluxDBRepository{
		client: influxdb2.NewClient(url, token),
		org:    org,
		bucket: bucket,
	}
}

// Health checks that the InfluxDB server is reachable and passing.
func (r *InfluxDBRepository) Health(ctx context.Context) error {
	health, err := r.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("InfluxDB health check failed: %s", msg)
	}
	return nil
}

// EnsureBucket creates the archive bucket in the organization when it does
// not exist yet.
func (r *InfluxDBRepository) EnsureBucket(ctx context.Context) (created bool, err error) {
	bucketsAPI := r.client.BucketsAPI()
	if _, err := bucketsAPI.FindBucketByName(ctx, r.bucket); err == nil {
		return false, nil
	}

	org, err := r.client.OrganizationsAPI().FindOrganizationByName(ctx, r.org)
	if err != nil {
		return false, fmt.Errorf("error finding organization '%s': %w", r.org, err)
	}
	if _, err := bucketsAPI.CreateBucketWithName(ctx, org, r.bucket); err != nil {
		return false, fmt.Errorf("error creating bucket '%s': %w", r.bucket, err)
	}
	return true, nil
}

// WriteSample writes the sample as one "telemetry" point tagged by account.
// Samples with no readings are skipped.
func (r *InfluxDBRepository) WriteSample(ctx context.Context, sample models.TelemetrySample) error {
	fields := make(map[string]interface{})
	for field, value := range map[string]*float64{
		"temperature": sample.Temperature,
		"humidity":    sample.Humidity,
		"no2":         sample.NO2,
		"pm10":        sample.PM10,
		"pm25":        sample.PM25,
	} {
		if value != nil {
			fields[field] = *value
		}
	}
	if len(fields) == 0 {
		return nil
	}

	p := influxdb2.NewPoint(
		"telemetry",
		map[string]string{"account_id": strconv.FormatUint(uint64(sample.AccountID), 10)},
		fields,
		time.Unix(sample.Timestamp, 0),
	)

	writeAPI := r.client.WriteAPIBlocking(r.org, r.bucket)
	if err := writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("error writing to InfluxDB: %w", err)
	}
	return nil
}

// Close releases the client's resources.
func (r *InfluxDBRepository) Close() {
	r.client.Close()
}
