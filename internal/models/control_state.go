package models

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnknownAttribute is returned for a control key outside the fixed set.
	ErrUnknownAttribute = errors.New("unknown control attribute")
	// ErrInvalidAttributeValue is returned when a value has the wrong type or range.
	ErrInvalidAttributeValue = errors.New("invalid control attribute value")
)

// DefaultIntervalSeconds is the reporting interval assumed until the account
// configures one.
const DefaultIntervalSeconds = 10

// ControlState is the single per-account row of actuator settings and
// thresholds. A NULL threshold disables alerting for that reading.
type ControlState struct {
	AccountID         uint      `gorm:"primaryKey;autoIncrement:false" json:"accountId"`
	FanSpeed          int       `gorm:"not null" json:"fanSpeed"`
	LedState          bool      `gorm:"not null" json:"ledState"`
	TimeInterval      int       `gorm:"not null" json:"timeInterval"` // seconds
	TempThreshold     *float64  `json:"tempThreshold"`
	HumidityThreshold *float64  `json:"humidityThreshold"`
	NO2Threshold      *float64  `gorm:"column:no2_threshold" json:"no2Threshold"`
	PM10Threshold     *float64  `gorm:"column:pm10_threshold" json:"pm10Threshold"`
	PM25Threshold     *float64  `gorm:"column:pm25_threshold" json:"pm25Threshold"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func (ControlState) TableName() string { return "device_control" }

// DefaultControlState is returned for accounts that have not configured
// anything yet.
func DefaultControlState(accountID uint) ControlState {
	return ControlState{
		AccountID:         accountID,
		FanSpeed:          0,
		LedState:          false,
		TimeInterval:      DefaultIntervalSeconds,
		TempThreshold:     float64Ptr(35),
		HumidityThreshold: float64Ptr(80),
		NO2Threshold:      float64Ptr(200),
		PM10Threshold:     float64Ptr(150),
		PM25Threshold:     float64Ptr(75),
	}
}

// NewControlRow is the state a freshly inserted row starts from: actuator
// defaults and no thresholds, so alerting stays off until one is configured.
func NewControlRow(accountID uint) ControlState {
	return ControlState{
		AccountID:    accountID,
		TimeInterval: DefaultIntervalSeconds,
	}
}

// Threshold returns the configured threshold for a reading, or nil.
func (c ControlState) Threshold(t ReadingType) *float64 {
	switch t {
	case ReadingTemperature:
		return c.TempThreshold
	case ReadingHumidity:
		return c.HumidityThreshold
	case ReadingNO2:
		return c.NO2Threshold
	case ReadingPM10:
		return c.PM10Threshold
	case ReadingPM25:
		return c.PM25Threshold
	}
	return nil
}

// Thresholds is the alerting part of a ControlState.
type Thresholds struct {
	Temperature *float64 `json:"tempThreshold"`
	Humidity    *float64 `json:"humidityThreshold"`
	NO2         *float64 `json:"no2Threshold"`
	PM10        *float64 `json:"pm10Threshold"`
	PM25        *float64 `json:"pm25Threshold"`
}

// Thresholds returns the threshold columns of c.
func (c ControlState) Thresholds() Thresholds {
	return Thresholds{
		Temperature: c.TempThreshold,
		Humidity:    c.HumidityThreshold,
		NO2:         c.NO2Threshold,
		PM10:        c.PM10Threshold,
		PM25:        c.PM25Threshold,
	}
}

// Interval returns the reporting interval in seconds, falling back to
// DefaultIntervalSeconds when unset.
func (c ControlState) Interval() int {
	if c.TimeInterval <= 0 {
		return DefaultIntervalSeconds
	}
	return c.TimeInterval
}

// Attribute is a controllable key as it is named on the wire.
type Attribute string

const (
	AttrFanSpeed          Attribute = "fanSpeed"
	AttrLedState          Attribute = "ledState"
	AttrTimeInterval      Attribute = "timeInterval"
	AttrTempThreshold     Attribute = "tempThreshold"
	AttrHumidityThreshold Attribute = "humidityThreshold"
	AttrNO2Threshold      Attribute = "no2Threshold"
	AttrPM10Threshold     Attribute = "pm10Threshold"
	AttrPM25Threshold     Attribute = "pm25Threshold"
)

var attributeColumns = map[Attribute]string{
	AttrFanSpeed:          "fan_speed",
	AttrLedState:          "led_state",
	AttrTimeInterval:      "time_interval",
	AttrTempThreshold:     "temp_threshold",
	AttrHumidityThreshold: "humidity_threshold",
	AttrNO2Threshold:      "no2_threshold",
	AttrPM10Threshold:     "pm10_threshold",
	AttrPM25Threshold:     "pm25_threshold",
}

// ClientAttributes are the keys the device reports back as client attributes.
var ClientAttributes = []Attribute{AttrFanSpeed, AttrLedState, AttrTimeInterval}

// Column returns the device_control column backing the attribute.
func (a Attribute) Column() string { return attributeColumns[a] }

// AttributeValue is a validated control change.
type AttributeValue struct {
	Attribute Attribute
	Value     any // int, bool or float64 depending on Attribute
}

// Apply writes the value into the matching field of state.
func (v AttributeValue) Apply(state *ControlState) {
	switch v.Attribute {
	case AttrFanSpeed:
		state.FanSpeed = v.Value.(int)
	case AttrLedState:
		state.LedState = v.Value.(bool)
	case AttrTimeInterval:
		state.TimeInterval = v.Value.(int)
	case AttrTempThreshold:
		state.TempThreshold = float64Ptr(v.Value.(float64))
	case AttrHumidityThreshold:
		state.HumidityThreshold = float64Ptr(v.Value.(float64))
	case AttrNO2Threshold:
		state.NO2Threshold = float64Ptr(v.Value.(float64))
	case AttrPM10Threshold:
		state.PM10Threshold = float64Ptr(v.Value.(float64))
	case AttrPM25Threshold:
		state.PM25Threshold = float64Ptr(v.Value.(float64))
	}
}

// ParseAttribute validates key and value as decoded from JSON (bool, float64
// or string) and normalizes the value to its column type.
func ParseAttribute(key string, raw any) (AttributeValue, error) {
	attr := Attribute(key)
	if _, ok := attributeColumns[attr]; !ok {
		return AttributeValue{}, fmt.Errorf("%w: %q", ErrUnknownAttribute, key)
	}

	switch attr {
	case AttrLedState:
		b, err := toBool(raw)
		if err != nil {
			return AttributeValue{}, fmt.Errorf("%w: %s: %v", ErrInvalidAttributeValue, key, err)
		}
		return AttributeValue{Attribute: attr, Value: b}, nil

	case AttrFanSpeed, AttrTimeInterval:
		f, err := toFloat(raw)
		if err != nil || f != math.Trunc(f) {
			return AttributeValue{}, fmt.Errorf("%w: %s must be an integer", ErrInvalidAttributeValue, key)
		}
		n := int(f)
		if attr == AttrFanSpeed && (n < 0 || n > 100) {
			return AttributeValue{}, fmt.Errorf("%w: fanSpeed must be within 0..100", ErrInvalidAttributeValue)
		}
		if attr == AttrTimeInterval && n <= 0 {
			return AttributeValue{}, fmt.Errorf("%w: timeInterval must be positive", ErrInvalidAttributeValue)
		}
		return AttributeValue{Attribute: attr, Value: n}, nil

	default:
		f, err := toFloat(raw)
		if err != nil {
			return AttributeValue{}, fmt.Errorf("%w: %s: %v", ErrInvalidAttributeValue, key, err)
		}
		return AttributeValue{Attribute: attr, Value: f}, nil
	}
}

func toFloat(raw any) (float64, error) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, err
		}
		f = parsed
	default:
		return 0, fmt.Errorf("expected a number, got %T", raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("expected a finite number, got %v", raw)
	}
	return f, nil
}

func toBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(v))
	}
	return false, fmt.Errorf("expected a boolean, got %T", raw)
}

func float64Ptr(v float64) *float64 { return &v }
