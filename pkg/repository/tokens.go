package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DefiantLabs/token-relayer/pkg/model"
)

var ErrTokenNotFound = errors.New("token not found")

type Tokens interface {
	ByUsername(ctx context.Context, username string) ([]*model.TokenInfo, error)
	ByAddress(ctx context.Context, address string) (*model.TokenInfo, error)
}

type tokens struct {
	db *pgxpool.Pool
}

func NewTokens(db *pgxpool.Pool) Tokens {
	return &tokens{db: db}
}

const tokenColumns = `address, name, symbol, amount, owner, authority, username, request_id, created_at`

func (r *tokens) ByUsername(ctx context.Context, username string) ([]*model.TokenInfo, error) {
	query := `select ` + tokenColumns + ` from tokens where username = $1 order by id`
	rows, err := r.db.Query(ctx, query, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	data := make([]*model.TokenInfo, 0)
	for rows.Next() {
		in, errScan := scanToken(rows)
		if errScan != nil {
			return nil, fmt.Errorf("repository.ByUsername, Scan: %v", errScan)
		}
		data = append(data, in)
	}

	return data, rows.Err()
}

func (r *tokens) ByAddress(ctx context.Context, address string) (*model.TokenInfo, error) {
	query := `select ` + tokenColumns + ` from tokens where lower(address) = lower($1)`
	in, err := scanToken(r.db.QueryRow(ctx, query, address))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, address)
	}
	if err != nil {
		return nil, err
	}
	return in, nil
}

func scanToken(row pgx.Row) (*model.TokenInfo, error) {
	var in model.TokenInfo
	var requestID int64
	err := row.Scan(&in.Address, &in.Name, &in.Symbol, &in.Amount, &in.Owner, &in.Authority, &in.Username, &requestID, &in.CreatedAt)
	if err != nil {
		return nil, err
	}
	in.RequestID = uint64(requestID)
	return &in, nil
}
