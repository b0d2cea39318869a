package model

import (
	"time"

	"github.com/DefiantLabs/token-relayer/core"
)

// OutcomeEvent is what gets published and archived for every terminal request.
type OutcomeEvent struct {
	CycleID      string    `json:"cycleId" bson:"cycle_id"`
	RequestID    uint64    `json:"requestId" bson:"request_id"`
	Kind         string    `json:"kind" bson:"kind"`
	Status       string    `json:"status" bson:"status"`
	Reason       string    `json:"reason,omitempty" bson:"reason,omitempty"`
	Error        string    `json:"error,omitempty" bson:"error,omitempty"`
	TxHashes     []string  `json:"txHashes,omitempty" bson:"tx_hashes,omitempty"`
	TokenAddress string    `json:"tokenAddress,omitempty" bson:"token_address,omitempty"`
	CompletedAt  time.Time `json:"completedAt" bson:"completed_at"`
}

func NewOutcomeEvent(outcome core.Outcome) OutcomeEvent {
	event := OutcomeEvent{
		CycleID:     outcome.CycleID,
		RequestID:   outcome.RequestID,
		Kind:        string(outcome.Kind),
		Status:      string(outcome.Status),
		Reason:      outcome.Reason,
		Error:       outcome.Error,
		TxHashes:    outcome.TxHashes,
		CompletedAt: outcome.CompletedAt.UTC(),
	}
	if outcome.Token != nil {
		event.TokenAddress = outcome.Token.Address
	}
	return event
}

// StatusCount is the number of requests currently in one status.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}
