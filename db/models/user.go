package models

import "time"

// User is owned by the API layer. The relay only reads it to learn a requester's wallet.
type User struct {
	Username      string `gorm:"primaryKey"`
	FullName      string
	Email         string
	WalletAddress string
	CreatedAt     time.Time
}
