package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DefiantLabs/token-relayer/core"
	"github.com/DefiantLabs/token-relayer/db/models"
)

// Store is the postgres backed core.RequestStore.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ClaimPending locks the oldest claimable rows with SKIP LOCKED, so a concurrent claimer never sees the same row,
// and marks them in progress under a fresh claim token in the same transaction.
func (s *Store) ClaimPending(ctx context.Context, opts core.ClaimOptions) ([]core.Request, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	var leaseUntil *time.Time
	if opts.Lease > 0 {
		until := now.Add(opts.Lease)
		leaseUntil = &until
	}

	token := uuid.NewString()
	var claimed []models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&models.Transaction{}).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Order("id")
		if opts.ReclaimExpired {
			query = query.Where("status = ? OR (status = ? AND lease_expires_at < ?)", string(core.StatusPending), string(core.StatusInProgress), now)
		} else {
			query = query.Where("status = ?", string(core.StatusPending))
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}

		var ids []uint64
		if err := query.Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		err := tx.Model(&models.Transaction{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":           string(core.StatusInProgress),
				"claimed_at":       now,
				"lease_expires_at": leaseUntil,
				"claim_token":      token,
			}).Error
		if err != nil {
			return err
		}

		return tx.Preload("User").Where("id IN ?", ids).Order("id").Find(&claimed).Error
	})
	if err != nil {
		return nil, err
	}

	requests := make([]core.Request, 0, len(claimed))
	for _, row := range claimed {
		requests = append(requests, toRequest(row))
	}
	return requests, nil
}

// Renew moves the lease of a row still held under claimToken.
func (s *Store) Renew(ctx context.Context, requestID uint64, claimToken string, until time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ? AND claim_token = ?", requestID, string(core.StatusInProgress), claimToken).
		Update("lease_expires_at", until)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: request %d is not held by claim %s", core.ErrInvalidTransition, requestID, claimToken)
	}
	return nil
}

// Commit records a terminal status. The update only matches rows still in progress under the outcome's claim
// token; a confirmed outcome carrying a token registers it in the same transaction so the two can never diverge.
func (s *Store) Commit(ctx context.Context, outcome core.Outcome) error {
	if !outcome.Status.Terminal() {
		return fmt.Errorf("%w: %s is not a terminal status", core.ErrInvalidTransition, outcome.Status)
	}
	if outcome.Token != nil && outcome.Status != core.StatusConfirmed {
		return fmt.Errorf("%w: token registered for a %s request", core.ErrInvalidTransition, outcome.Status)
	}

	completedAt := outcome.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Transaction{}).
			Where("id = ? AND status = ? AND claim_token = ?", outcome.RequestID, string(core.StatusInProgress), outcome.ClaimToken).
			Updates(map[string]interface{}{
				"status":        string(outcome.Status),
				"status_reason": outcome.Reason,
				"error":         outcome.Error,
				"tx_hashes":     strings.Join(outcome.TxHashes, ","),
				"completed_at":  completedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: request %d is not in progress under claim %s", core.ErrInvalidTransition, outcome.RequestID, outcome.ClaimToken)
		}

		if outcome.Token == nil {
			return nil
		}
		token := models.Token{
			Address:   outcome.Token.Address,
			Name:      outcome.Token.Name,
			Symbol:    outcome.Token.Symbol,
			Amount:    outcome.Token.Amount,
			Owner:     outcome.Token.Owner,
			Authority: outcome.Token.Authority,
			Username:  outcome.Token.Username,
			RequestID: outcome.RequestID,
		}
		if err := tx.Omit(clause.Associations).Create(&token).Error; err != nil {
			if IsUniqueViolation(err) {
				return fmt.Errorf("token %s for request %d is already registered: %w", token.Address, outcome.RequestID, err)
			}
			return err
		}
		return nil
	})
}

// Enqueue validates payload against kind and inserts a pending request.
func (s *Store) Enqueue(ctx context.Context, username string, kind core.Kind, payload json.RawMessage) (uint64, error) {
	if _, err := core.DecodePayload(kind, payload); err != nil {
		return 0, err
	}
	row := models.Transaction{
		Username: username,
		Context:  string(kind),
		Payload:  payload,
		Status:   string(core.StatusPending),
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

// Get loads a request regardless of status.
func (s *Store) Get(ctx context.Context, id uint64) (core.Request, error) {
	var row models.Transaction
	err := s.db.WithContext(ctx).Preload("User").First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Request{}, fmt.Errorf("request %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Request{}, err
	}
	return toRequest(row), nil
}

// TokenByRequest returns the token registered by a confirmed CREATE_TOKEN request.
func (s *Store) TokenByRequest(ctx context.Context, requestID uint64) (core.TokenRecord, error) {
	var row models.Token
	err := s.db.WithContext(ctx).Where("request_id = ?", requestID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.TokenRecord{}, fmt.Errorf("token for request %d: %w", requestID, ErrNotFound)
	}
	if err != nil {
		return core.TokenRecord{}, err
	}
	return core.TokenRecord{
		Address:   row.Address,
		Name:      row.Name,
		Symbol:    row.Symbol,
		Amount:    row.Amount,
		Owner:     row.Owner,
		Authority: row.Authority,
		Username:  row.Username,
		RequestID: row.RequestID,
	}, nil
}

func toRequest(row models.Transaction) core.Request {
	return core.Request{
		ID:      row.ID,
		Kind:    core.Kind(row.Context),
		Payload: row.Payload,
		Status:  core.Status(row.Status),
		Requester: core.Identity{
			Username:      row.Username,
			WalletAddress: row.User.WalletAddress,
		},
		CreatedAt:  row.CreatedAt,
		ClaimedAt:  row.ClaimedAt,
		LeaseUntil: row.LeaseExpiresAt,
		ClaimToken: row.ClaimToken,
	}
}
