package models

import "time"

type Token struct {
	ID        uint
	Address   string `gorm:"uniqueIndex;not null"`
	Name      string
	Symbol    string
	Amount    string
	Owner     string
	Authority string
	Username  string `gorm:"index"`
	// RequestID is the CREATE_TOKEN transaction that deployed the token.
	RequestID uint64      `gorm:"uniqueIndex"`
	Request   Transaction `gorm:"foreignKey:RequestID"`
	CreatedAt time.Time
}
