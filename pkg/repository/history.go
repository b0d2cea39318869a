package repository

import (
	"context"

	migrate "github.com/xakep666/mongo-migrate"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/DefiantLabs/token-relayer/config"
	"github.com/DefiantLabs/token-relayer/core"
	"github.com/DefiantLabs/token-relayer/pkg/model"
)

const historyCollection = "request_outcomes"

type History interface {
	RecordOutcome(ctx context.Context, outcome core.Outcome) error
	ByRequest(ctx context.Context, requestID uint64) ([]model.OutcomeEvent, error)
	ByCycle(ctx context.Context, cycleID string) ([]model.OutcomeEvent, error)
}

type history struct {
	pool *mongo.Database
}

func NewHistory(pool *mongo.Database) History {
	return &history{pool: pool}
}

func (a *history) RecordOutcome(ctx context.Context, outcome core.Outcome) error {
	res, err := a.pool.Collection(historyCollection).InsertOne(ctx, model.NewOutcomeEvent(outcome))
	if err != nil {
		return err
	}
	config.Log.Debugf("archived outcome of request %d as %v", outcome.RequestID, res.InsertedID)
	return nil
}

func (a *history) ByRequest(ctx context.Context, requestID uint64) ([]model.OutcomeEvent, error) {
	return a.find(ctx, bson.M{"request_id": requestID})
}

func (a *history) ByCycle(ctx context.Context, cycleID string) ([]model.OutcomeEvent, error) {
	return a.find(ctx, bson.M{"cycle_id": cycleID})
}

func (a *history) find(ctx context.Context, filter bson.M) ([]model.OutcomeEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "completed_at", Value: 1}})
	cursor, err := a.pool.Collection(historyCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	dbResult := make([]model.OutcomeEvent, 0)
	if err = cursor.All(ctx, &dbResult); err != nil {
		return nil, err
	}
	return dbResult, nil
}

// HistoryMigrations creates the indexes the history lookups rely on.
func HistoryMigrations() []migrate.Migration {
	return []migrate.Migration{
		{
			Version:     1,
			Description: "index outcomes by request",
			Up: func(ctx context.Context, db *mongo.Database) error {
				_, err := db.Collection(historyCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
					Keys:    bson.D{{Key: "request_id", Value: 1}, {Key: "completed_at", Value: 1}},
					Options: options.Index().SetName("request_id_completed_at"),
				})
				return err
			},
			Down: func(ctx context.Context, db *mongo.Database) error {
				_, err := db.Collection(historyCollection).Indexes().DropOne(ctx, "request_id_completed_at")
				return err
			},
		},
		{
			Version:     2,
			Description: "index outcomes by cycle",
			Up: func(ctx context.Context, db *mongo.Database) error {
				_, err := db.Collection(historyCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
					Keys:    bson.D{{Key: "cycle_id", Value: 1}},
					Options: options.Index().SetName("cycle_id"),
				})
				return err
			},
			Down: func(ctx context.Context, db *mongo.Database) error {
				_, err := db.Collection(historyCollection).Indexes().DropOne(ctx, "cycle_id")
				return err
			},
		},
	}
}

// MigrateHistory applies every history migration not yet recorded in the database.
func MigrateHistory(ctx context.Context, db *mongo.Database) error {
	m := migrate.NewMigrate(db, HistoryMigrations()...)
	return m.Up(ctx, migrate.AllAvailable)
}
