package models

// LiveStatus is the derived connectivity state of an account's device.
type LiveStatus string

const (
	StatusOnline  LiveStatus = "ONLINE"
	StatusOffline LiveStatus = "OFFLINE"
)

// LatestData is the dashboard view of an account: the newest sample plus the
// status computed at read time. Readings are null when no sample exists.
type LatestData struct {
	Temperature  *float64   `json:"temperature"`
	Humidity     *float64   `json:"humidity"`
	NO2          *float64   `json:"no2"`
	PM10         *float64   `json:"pm10"`
	PM25         *float64   `json:"pm25"`
	LastUpdated  *int64     `json:"lastUpdated"`
	Status       LiveStatus `json:"status"`
	IntervalTime int        `json:"intervalTime"`
}
