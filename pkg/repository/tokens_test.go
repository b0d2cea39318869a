package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm/clause"

	"github.com/DefiantLabs/token-relayer/db/models"
)

func TestTokens(t *testing.T) {
	requirePostgres(t)
	ctx := context.Background()

	sampleUsers := `INSERT INTO users (username, wallet_address, created_at) VALUES ('alice', '0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC', now()), ('bob', '', now())`
	sampleTransactions := `INSERT INTO transactions (id, username, context, payload, status, created_at)
VALUES
    (1, 'alice', 'CREATE_TOKEN', '{}', 'confirmed', now()),
    (2, 'alice', 'CREATE_TOKEN', '{}', 'confirmed', now()),
    (3, 'bob', 'CREATE_TOKEN', '{}', 'confirmed', now())`

	tests := []struct {
		name     string
		before   func()
		username string
		expected []string
		after    func()
	}{
		{"tokens of one user in registration order",
			func() {
				_, err := postgresConn.Exec(ctx, sampleUsers)
				require.NoError(t, err)
				_, err = postgresConn.Exec(ctx, sampleTransactions)
				require.NoError(t, err)
				require.NoError(t, gormDB.Omit(clause.Associations).Create(&[]models.Token{
					{Address: "0x00000000000000000000000000000000000000a1", Name: "Gold", Symbol: "GLD", Amount: "1000", Username: "alice", RequestID: 1},
					{Address: "0x00000000000000000000000000000000000000a2", Name: "Silver", Symbol: "SLV", Amount: "5", Username: "alice", RequestID: 2},
					{Address: "0x00000000000000000000000000000000000000b1", Name: "Bronze", Symbol: "BRZ", Amount: "7", Username: "bob", RequestID: 3},
				}).Error)
			},
			"alice",
			[]string{"GLD", "SLV"},
			func() {
				_, _ = postgresConn.Exec(ctx, `TRUNCATE tokens, transactions, users RESTART IDENTITY CASCADE`)
			},
		},
		{"unknown user has no tokens",
			func() {},
			"carol",
			[]string{},
			func() {},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.before()
			defer tt.after()

			repo := NewTokens(postgresConn)
			list, err := repo.ByUsername(ctx, tt.username)
			require.NoError(t, err)

			symbols := make([]string, 0, len(list))
			for _, token := range list {
				symbols = append(symbols, token.Symbol)
				require.Equal(t, tt.username, token.Username)
			}
			require.Equal(t, tt.expected, symbols)

			if len(list) > 0 {
				found, err := repo.ByAddress(ctx, "0x00000000000000000000000000000000000000A1")
				require.NoError(t, err)
				require.Equal(t, "Gold", found.Name)
				require.Equal(t, uint64(1), found.RequestID)
			}
		})
	}

	_, err := NewTokens(postgresConn).ByAddress(ctx, "0x00000000000000000000000000000000000000ff")
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestCountByStatus(t *testing.T) {
	requirePostgres(t)
	ctx := context.Background()
	defer func() {
		_, _ = postgresConn.Exec(ctx, `TRUNCATE tokens, transactions, users RESTART IDENTITY CASCADE`)
	}()

	_, err := postgresConn.Exec(ctx, `INSERT INTO users (username, created_at) VALUES ('alice', now())`)
	require.NoError(t, err)
	_, err = postgresConn.Exec(ctx, `INSERT INTO transactions (username, context, payload, status, created_at)
VALUES ('alice', 'MINT_TOKEN', '{}', 'pending', now()),
       ('alice', 'MINT_TOKEN', '{}', 'pending', now()),
       ('alice', 'BURN_TOKEN', '{}', 'failed', now())`)
	require.NoError(t, err)

	counts, err := NewRequests(postgresConn).CountByStatus(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	require.Equal(t, "failed", counts[0].Status)
	require.Equal(t, int64(1), counts[0].Count)
	require.Equal(t, "pending", counts[1].Status)
	require.Equal(t, int64(2), counts[1].Count)
}
