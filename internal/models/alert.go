package models

// AlertType identifies which reading raised an alert.
type AlertType string

const (
	AlertTemp     AlertType = "temp"
	AlertHumidity AlertType = "humidity"
	AlertNO2      AlertType = "no2"
	AlertPM10     AlertType = "pm10"
	AlertPM25     AlertType = "pm25"
)

// Alert is one row of the alert log. For a given (account, type) at most one
// row has IsRead == false; the storage layer enforces it with a partial
// unique index.
type Alert struct {
	LogID     uint      `gorm:"column:log_id;primaryKey" json:"logId"`
	AccountID uint      `gorm:"not null;index" json:"-"`
	Type      AlertType `gorm:"size:16;not null" json:"type"`
	Message   string    `gorm:"size:255;not null" json:"message"`
	IsRead    bool      `gorm:"not null" json:"isRead"`
	Timestamp int64     `gorm:"column:time_stamp;not null;index" json:"timestamp"`
}

func (Alert) TableName() string { return "alerts_log" }
