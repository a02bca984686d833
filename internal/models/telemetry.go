package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformedPayload is returned when a broker message is not a flat JSON
// object or carries a non-numeric value for a known reading.
var ErrMalformedPayload = errors.New("malformed payload")

// ReadingType names one monitored sensor reading as it appears on the wire.
type ReadingType string

const (
	ReadingTemperature ReadingType = "temperature"
	ReadingHumidity    ReadingType = "humidity"
	ReadingNO2         ReadingType = "no2"
	ReadingPM10        ReadingType = "pm10"
	ReadingPM25        ReadingType = "pm25"
)

// ReadingTypes lists every monitored reading in evaluation order.
var ReadingTypes = []ReadingType{ReadingTemperature, ReadingHumidity, ReadingNO2, ReadingPM10, ReadingPM25}

// readingMeta holds the display label, unit and alert type of a reading.
var readingMeta = map[ReadingType]struct {
	label string
	unit  string
	alert AlertType
}{
	ReadingTemperature: {"Temperature", "°C", AlertTemp},
	ReadingHumidity:    {"Humidity", "%", AlertHumidity},
	ReadingNO2:         {"NO2", "µg/m³", AlertNO2},
	ReadingPM10:        {"PM10", "µg/m³", AlertPM10},
	ReadingPM25:        {"PM2.5", "µg/m³", AlertPM25},
}

// AlertType returns the alert type raised when this reading breaches its threshold.
func (r ReadingType) AlertType() AlertType { return readingMeta[r].alert }

// Label returns a human-readable name for the reading.
func (r ReadingType) Label() string { return readingMeta[r].label }

// Unit returns the measurement unit of the reading.
func (r ReadingType) Unit() string { return readingMeta[r].unit }

// TelemetrySample is one timestamped set of readings for an account. Absent
// readings are stored as NULL; zero is a real value.
type TelemetrySample struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	AccountID   uint     `gorm:"not null;index:idx_telemetry_account_ts,priority:1" json:"accountId"`
	Timestamp   int64    `gorm:"column:time_stamp;not null;index:idx_telemetry_account_ts,priority:2" json:"timestamp"` // seconds since epoch
	Temperature *float64 `gorm:"column:temperature" json:"temperature"`
	Humidity    *float64 `gorm:"column:humidity" json:"humidity"`
	NO2         *float64 `gorm:"column:no2" json:"no2"`
	PM10        *float64 `gorm:"column:pm10" json:"pm10"`
	PM25        *float64 `gorm:"column:pm25" json:"pm25"`
}

func (TelemetrySample) TableName() string { return "telemetry" }

// Reading is a single present value taken from a payload.
type Reading struct {
	Type  ReadingType
	Value float64
}

// Payload is the typed form of an inbound attribute message. Only the known
// readings are kept; every other key is listed in Ignored.
type Payload struct {
	Temperature *float64
	Humidity    *float64
	NO2         *float64
	PM10        *float64
	PM25        *float64

	Ignored []string
}

func (p *Payload) field(t ReadingType) **float64 {
	switch t {
	case ReadingTemperature:
		return &p.Temperature
	case ReadingHumidity:
		return &p.Humidity
	case ReadingNO2:
		return &p.NO2
	case ReadingPM10:
		return &p.PM10
	case ReadingPM25:
		return &p.PM25
	}
	return nil
}

// Readings returns the present readings in ReadingTypes order.
func (p Payload) Readings() []Reading {
	var out []Reading
	for _, t := range ReadingTypes {
		if v := *p.field(t); v != nil {
			out = append(out, Reading{Type: t, Value: *v})
		}
	}
	return out
}

// HasReadings reports whether at least one known reading is present.
func (p Payload) HasReadings() bool {
	return len(p.Readings()) > 0
}

// Sample builds the row to insert for this payload.
func (p Payload) Sample(accountID uint, timestamp int64) TelemetrySample {
	return TelemetrySample{
		AccountID:   accountID,
		Timestamp:   timestamp,
		Temperature: p.Temperature,
		Humidity:    p.Humidity,
		NO2:         p.NO2,
		PM10:        p.PM10,
		PM25:        p.PM25,
	}
}

// ParsePayload decodes a flat JSON object into a Payload. Known reading keys
// are matched case-insensitively and accept a JSON number, a numeric string or
// null (treated as absent). Any other key is recorded in Ignored.
func ParsePayload(raw []byte) (Payload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if fields == nil {
		return Payload{}, fmt.Errorf("%w: not a JSON object", ErrMalformedPayload)
	}

	var p Payload
	for key, value := range fields {
		target := p.field(ReadingType(strings.ToLower(key)))
		if target == nil {
			p.Ignored = append(p.Ignored, key)
			continue
		}
		v, err := decodeReading(value)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: field %q: %v", ErrMalformedPayload, key, err)
		}
		*target = v
	}
	sort.Strings(p.Ignored)
	return p, nil
}

func decodeReading(value json.RawMessage) (*float64, error) {
	value = bytes.TrimSpace(value)
	if bytes.Equal(value, []byte("null")) {
		return nil, nil
	}

	var number float64
	if err := json.Unmarshal(value, &number); err == nil {
		return &number, nil
	}

	var text string
	if err := json.Unmarshal(value, &text); err != nil {
		return nil, fmt.Errorf("expected a number, got %s", value)
	}
	number, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(number) || math.IsInf(number, 0) {
		return nil, fmt.Errorf("expected a finite number, got %q", text)
	}
	return &number, nil
}
