package repository

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/DefiantLabs/token-relayer/core"
	"github.com/DefiantLabs/token-relayer/pkg/model"
)

const (
	outcomesChannel      = "pub/requests"
	maxOutcomesCacheSize = 50
	outcomesKey          = "c/latest_outcomes"
)

type OutcomesCache interface {
	RecordOutcome(ctx context.Context, outcome core.Outcome) error
	GetOutcomes(ctx context.Context, start, stop int64) ([]*model.OutcomeEvent, error)
	SubscribeOutcomes(ctx context.Context) (<-chan model.OutcomeEvent, error)
}

// Cache keeps the latest outcomes in a capped list and publishes each one for live subscribers.
type Cache struct {
	rdb *redis.Client
}

func NewCache(rdb *redis.Client) *Cache {
	return &Cache{
		rdb: rdb,
	}
}

func (s *Cache) RecordOutcome(ctx context.Context, outcome core.Outcome) error {
	res, err := json.Marshal(model.NewOutcomeEvent(outcome))
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, outcomesKey, string(res))
		pipe.LTrim(ctx, outcomesKey, 0, maxOutcomesCacheSize-1)
		pipe.Publish(ctx, outcomesChannel, res)
		return nil
	})
	return err
}

func (s *Cache) GetOutcomes(ctx context.Context, start, stop int64) ([]*model.OutcomeEvent, error) {
	if stop >= maxOutcomesCacheSize {
		stop = maxOutcomesCacheSize - 1
	}

	res, err := s.rdb.LRange(ctx, outcomesKey, start, stop).Result()
	if err != nil {
		return nil, err
	}

	outcomes := make([]*model.OutcomeEvent, 0, len(res))
	for _, r := range res {
		var event model.OutcomeEvent
		if err := json.Unmarshal([]byte(r), &event); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, &event)
	}

	return outcomes, nil
}

// SubscribeOutcomes streams published outcomes until ctx is done.
func (s *Cache) SubscribeOutcomes(ctx context.Context) (<-chan model.OutcomeEvent, error) {
	sub := s.rdb.Subscribe(ctx, outcomesChannel)
	// wait for the subscription to be confirmed so nothing published after this returns is missed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan model.OutcomeEvent)
	go func() {
		defer close(out)
		defer sub.Close()
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event model.OutcomeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
