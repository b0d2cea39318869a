package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DefiantLabs/token-relayer/pkg/model"
)

type Requests interface {
	CountByStatus(ctx context.Context) ([]*model.StatusCount, error)
}

type requests struct {
	db *pgxpool.Pool
}

func NewRequests(db *pgxpool.Pool) Requests {
	return &requests{db: db}
}

func (r *requests) CountByStatus(ctx context.Context) ([]*model.StatusCount, error) {
	query := `select status, count(*) from transactions group by status order by status`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	data := make([]*model.StatusCount, 0)
	for rows.Next() {
		var in model.StatusCount
		if errScan := rows.Scan(&in.Status, &in.Count); errScan != nil {
			return nil, fmt.Errorf("repository.CountByStatus, Scan: %v", errScan)
		}
		data = append(data, &in)
	}
	return data, rows.Err()
}
