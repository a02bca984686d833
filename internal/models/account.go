package models

import "time"

// Account owns one device credential. Rows are provisioned outside this
// service; the core only reads them.
type Account struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Credential   string    `gorm:"size:128;uniqueIndex;not null" json:"-"` // device access token
	CreatedAt    time.Time `json:"createdAt"`
}

func (Account) TableName() string { return "accounts" }
