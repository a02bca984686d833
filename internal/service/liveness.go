package service

import (
	"time"

	"CapIot.telemetry/internal/models"
)

// Status reports ONLINE when the newest sample is at most 1.2 reporting
// intervals old. The comparison is 5*age <= 6*interval so the boundary is
// exact. An interval of zero or less falls back to the default.
func Status(latest *int64, intervalSeconds int, now time.Time) models.LiveStatus {
	if latest == nil {
		return models.StatusOffline
	}
	if intervalSeconds <= 0 {
		intervalSeconds = models.DefaultIntervalSeconds
	}
	age := now.Unix() - *latest
	if 5*age <= 6*int64(intervalSeconds) {
		return models.StatusOnline
	}
	return models.StatusOffline
}
