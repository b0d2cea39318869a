package service

import (
	"context"
	"fmt"

	"github.com/DefiantLabs/token-relayer/core"
	"github.com/DefiantLabs/token-relayer/pkg/model"
	"github.com/DefiantLabs/token-relayer/pkg/repository"
)

const defaultRecentOutcomes = 10

// RequestReader is the part of the request store the lookups read. *db.Store satisfies it.
type RequestReader interface {
	Get(ctx context.Context, id uint64) (core.Request, error)
	TokenByRequest(ctx context.Context, requestID uint64) (core.TokenRecord, error)
}

type Requests interface {
	Show(ctx context.Context, id uint64) (*model.RequestDetails, error)
	Cycle(ctx context.Context, cycleID string) ([]model.OutcomeEvent, error)
	Recent(ctx context.Context, n int64) ([]*model.OutcomeEvent, error)
	Watch(ctx context.Context) (<-chan model.OutcomeEvent, error)
}

type requests struct {
	store   RequestReader
	history repository.History
	feed    repository.OutcomesCache
}

// NewRequests builds the request lookups. Any backend may be nil, the lookups needing it then fail with core.ErrConfiguration.
func NewRequests(store RequestReader, history repository.History, feed repository.OutcomesCache) Requests {
	return &requests{store: store, history: history, feed: feed}
}

func (s *requests) Show(ctx context.Context, id uint64) (*model.RequestDetails, error) {
	if s.store == nil {
		return nil, fmt.Errorf("%w: request database is not configured", core.ErrConfiguration)
	}
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	details := &model.RequestDetails{
		ID:         req.ID,
		Kind:       string(req.Kind),
		Status:     string(req.Status),
		Username:   req.Requester.Username,
		Payload:    req.Payload,
		CreatedAt:  req.CreatedAt,
		ClaimedAt:  req.ClaimedAt,
		LeaseUntil: req.LeaseUntil,
	}

	if req.Kind == core.KindCreateToken && req.Status == core.StatusConfirmed {
		token, err := s.store.TokenByRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		details.Token = &model.TokenInfo{
			Address:   token.Address,
			Name:      token.Name,
			Symbol:    token.Symbol,
			Amount:    token.Amount,
			Owner:     token.Owner,
			Authority: token.Authority,
			Username:  token.Username,
			RequestID: token.RequestID,
		}
	}

	if s.history != nil {
		details.History, err = s.history.ByRequest(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("history of request %d: %w", id, err)
		}
	}
	return details, nil
}

func (s *requests) Cycle(ctx context.Context, cycleID string) ([]model.OutcomeEvent, error) {
	if s.history == nil {
		return nil, fmt.Errorf("%w: outcome history (mongo) is not configured", core.ErrConfiguration)
	}
	return s.history.ByCycle(ctx, cycleID)
}

// Recent returns the n latest outcomes, newest first.
func (s *requests) Recent(ctx context.Context, n int64) ([]*model.OutcomeEvent, error) {
	if s.feed == nil {
		return nil, fmt.Errorf("%w: outcome feed (redis) is not configured", core.ErrConfiguration)
	}
	if n <= 0 {
		n = defaultRecentOutcomes
	}
	return s.feed.GetOutcomes(ctx, 0, n-1)
}

func (s *requests) Watch(ctx context.Context) (<-chan model.OutcomeEvent, error) {
	if s.feed == nil {
		return nil, fmt.Errorf("%w: outcome feed (redis) is not configured", core.ErrConfiguration)
	}
	return s.feed.SubscribeOutcomes(ctx)
}
