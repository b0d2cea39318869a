package models

import (
	"encoding/json"
	"time"
)

// Transaction is a queued request. Context holds the request kind.
type Transaction struct {
	ID             uint64          `gorm:"primaryKey"`
	Username       string          `gorm:"index"`
	User           User            `gorm:"foreignKey:Username;references:Username"`
	Context        string          `gorm:"not null"`
	Payload        json.RawMessage `gorm:"type:jsonb"`
	Status         string          `gorm:"not null;default:pending;index"`
	StatusReason   string
	Error          string
	TxHashes       string
	ClaimedAt      *time.Time
	LeaseExpiresAt *time.Time
	ClaimToken     string `gorm:"size:36;index"`
	CompletedAt    *time.Time
	CreatedAt      time.Time
}
