package core

import (
	"encoding/json"
	"time"
)

// Kind is the closed set of ledger operations a request may ask for.
type Kind string

const (
	KindCreateToken   Kind = "CREATE_TOKEN"
	KindMintToken     Kind = "MINT_TOKEN"
	KindBurnToken     Kind = "BURN_TOKEN"
	KindTransferToken Kind = "TRANSFER_TOKEN"
)

func (k Kind) Valid() bool {
	switch k {
	case KindCreateToken, KindMintToken, KindBurnToken, KindTransferToken:
		return true
	}
	return false
}

// Status of a request. Transitions only go Pending -> InProgress -> {Confirmed, Failed}.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusConfirmed  Status = "confirmed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// CanTransition reports whether from -> to is an edge of the request state machine.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusInProgress
	case StatusInProgress:
		return to == StatusConfirmed || to == StatusFailed
	}
	return false
}

// Identity is the user a request was submitted by.
type Identity struct {
	Username      string
	WalletAddress string
}

// Request is a claimed ledger-change intent. Payload is kept raw until the engine decodes it against Kind.
type Request struct {
	ID         uint64
	Kind       Kind
	Payload    json.RawMessage
	Status     Status
	Requester  Identity
	CreatedAt  time.Time
	ClaimedAt  *time.Time
	LeaseUntil *time.Time
	// ClaimToken identifies the claim that handed this request to the current cycle.
	ClaimToken string
}

// TokenRecord is registered once per confirmed CREATE_TOKEN request.
type TokenRecord struct {
	Address   string
	Name      string
	Symbol    string
	Amount    string
	Owner     string
	Authority string
	Username  string
	RequestID uint64
}

// Receipt is the part of a mined transaction the relay keeps.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
}

// Outcome is the terminal result committed for one request.
type Outcome struct {
	CycleID     string
	RequestID   uint64
	ClaimToken  string
	Kind        Kind
	Status      Status
	Reason      string
	Error       string
	TxHashes    []string
	Token       *TokenRecord
	CompletedAt time.Time
}

// CycleReport summarises one RunOnce.
type CycleReport struct {
	CycleID   string
	Processed int
	Confirmed int
	Failed    int
	// Uncommitted counts requests whose terminal status could not be written; they stay InProgress.
	Uncommitted int
	Duration    time.Duration
}
