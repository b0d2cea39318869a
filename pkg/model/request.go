package model

import (
	"encoding/json"
	"time"
)

// RequestDetails is one queued request with what the relay recorded about it.
type RequestDetails struct {
	ID         uint64          `json:"id"`
	Kind       string          `json:"kind"`
	Status     string          `json:"status"`
	Username   string          `json:"username"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"createdAt"`
	ClaimedAt  *time.Time      `json:"claimedAt,omitempty"`
	LeaseUntil *time.Time      `json:"leaseUntil,omitempty"`
	Token      *TokenInfo      `json:"token,omitempty"`
	History    []OutcomeEvent  `json:"history,omitempty"`
}
