package db_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/DefiantLabs/token-relayer/core"
	dbTypes "github.com/DefiantLabs/token-relayer/db"
	"github.com/DefiantLabs/token-relayer/db/models"
	testUtils "github.com/DefiantLabs/token-relayer/test/utils"
)

const (
	tokenAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	recipient    = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	aliceWallet  = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
)

type DBTestSuite struct {
	suite.Suite
	db    *gorm.DB
	clean func()
	store *dbTypes.Store
	ctx   context.Context
}

func (suite *DBTestSuite) SetupSuite() {
	conf, err := testUtils.SetupTestDatabase()
	if err != nil {
		suite.T().Skipf("postgres container unavailable: %v", err)
	}

	suite.db = conf.GormDB
	suite.clean = conf.Clean
	suite.ctx = context.Background()
	suite.Require().NoError(dbTypes.MigrateModels(suite.db))
	suite.store = dbTypes.NewStore(suite.db)
}

func (suite *DBTestSuite) TearDownSuite() {
	if suite.clean != nil {
		suite.clean()
	}
}

func (suite *DBTestSuite) SetupTest() {
	suite.Require().NoError(suite.db.Exec("TRUNCATE tokens, transactions, users RESTART IDENTITY CASCADE").Error)
	suite.Require().NoError(suite.db.Create(&models.User{Username: "alice", WalletAddress: aliceWallet}).Error)
}

func mintPayload(amount string) json.RawMessage {
	raw, _ := json.Marshal(core.MintTokenPayload{TokenAddress: tokenAddress, RecipientAddress: recipient, Amount: amount})
	return raw
}

func (suite *DBTestSuite) enqueue(n int) []uint64 {
	ids := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		id, err := suite.store.Enqueue(suite.ctx, "alice", core.KindMintToken, mintPayload("1"))
		suite.Require().NoError(err)
		ids = append(ids, id)
	}
	return ids
}

func (suite *DBTestSuite) TestMigrateModelsIsIdempotent() {
	suite.Require().NoError(dbTypes.MigrateModels(suite.db))
}

func (suite *DBTestSuite) TestEnqueueValidatesPayload() {
	_, err := suite.store.Enqueue(suite.ctx, "alice", core.KindMintToken, json.RawMessage(`{"amount":"1"}`))
	suite.Require().ErrorIs(err, core.ErrMalformedPayload)

	_, err = suite.store.Enqueue(suite.ctx, "alice", core.Kind("FREEZE"), json.RawMessage(`{}`))
	suite.Require().ErrorIs(err, core.ErrUnknownKind)
}

func (suite *DBTestSuite) TestClaimPending() {
	ids := suite.enqueue(3)
	now := time.Now().UTC().Truncate(time.Microsecond)

	claimed, err := suite.store.ClaimPending(suite.ctx, core.ClaimOptions{Now: now})
	suite.Require().NoError(err)
	suite.Require().Len(claimed, 3)
	for i, req := range claimed {
		suite.Equal(ids[i], req.ID)
		suite.Equal(core.StatusInProgress, req.Status)
		suite.Equal(core.KindMintToken, req.Kind)
		suite.Equal("alice", req.Requester.Username)
		suite.Equal(aliceWallet, req.Requester.WalletAddress)
		suite.Require().NotNil(req.ClaimedAt)
		suite.True(now.Equal(*req.ClaimedAt))
		suite.Nil(req.LeaseUntil)
		suite.NotEmpty(req.ClaimToken)
		suite.Equal(claimed[0].ClaimToken, req.ClaimToken)
		suite.JSONEq(string(mintPayload("1")), string(req.Payload))
	}

	again, err := suite.store.ClaimPending(suite.ctx, core.ClaimOptions{Now: now})
	suite.Require().NoError(err)
	suite.Empty(again)
}

func (suite *DBTestSuite) TestClaimLimit() {
	ids := suite.enqueue(3)

	claimed, err := suite.store.ClaimPending(suite.ctx, core.ClaimOptions{Limit: 2})
	suite.Require().NoError(err)
	suite.Require().Len(claimed, 2)
	suite.Equal(ids[0], claimed[0].ID)
	suite.Equal(ids[1], claimed[1].ID)

	rest, err := suite.store.ClaimPending(suite.ctx, core.ClaimOptions{Limit: 2})
	suite.Require().NoError(err)
	suite.Require().Len(rest, 1)
	suite.Equal(ids[2], rest[0].ID)
}

func (suite *DBTestSuite) TestConcurrentClaimsNeverOverlap() {
	suite.enqueue(20)

	var (
		mu   sync.Mutex
		seen = make(map[uint64]int)
		wg   sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := suite.store.ClaimPending(suite.ctx, core.ClaimOptions{Limit: 5})
			suite.NoError(err)
			mu.Lock()
			defer mu.Unlock()
			for _, req := range claimed {
				seen[req.ID]++
			}
		}()
	}
	wg.Wait()

	for id, n := range seen {
		suite.Equal(1, n, "request %d claimed %d times", id, n)
	}
}

func (suite *DBTestSuite) TestLeaseReclaim() {
	ids := suite.enqueue(1)
	start := time.Now().UTC()

	claimed, err := suite.store.ClaimPending(suite.ctx, core.ClaimOptions{Lease: time.Minute, ReclaimExpired: true, Now: start})
	suite.Require().NoError(err)
	suite.Require().Len(claimed, 1)
	suite.Require().NotNil(claimed[0].LeaseUntil)

	// lease still valid
	claimed, err = suite.store.ClaimPending(suite.ctx, core.ClaimOptions{Lease: time.Minute, ReclaimExpired: true, Now: start.Add(30 * time.Second)})
	suite.Require().NoError(err)
	suite.Empty(claimed)

	// reclaim stays off unless asked for
	claimed, err = suite.store.ClaimPending(suite.ctx, core.ClaimOptions{Now: start.Add(2 * time.Minute)})
	suite.Require().NoError(err)
	suite.Empty(claimed)

	claimed, err = suite.store.ClaimPending(suite.ctx, core.ClaimOptions{Lease: time.Minute, ReclaimExpired: true, Now: start.Add(2 * time.Minute)})
	suite.Require().NoError(err)
	suite.Require().Len(claimed, 1)
	suite.Equal(ids[0], claimed[0].ID)
}

func (suite *DBTestSuite) TestCommitConfirmedWithToken() {
	payload, _ := json.Marshal(core.CreateTokenPayload{Name: "Gold", Symbol: "GLD", Amount: "1000", Owner: aliceWallet})
	id, err := suite.store.Enqueue(suite.ctx, "alice", core.KindCreateToken, payload)
	suite.Require().NoError(err)
	claimed, err := suite.store.ClaimPending(suite.ctx, core.ClaimOptions{})
	suite.Require().NoError(err)
	suite.Require().Len(claimed, 1)

	token := &core.TokenRecord{Address: tokenAddress, Name: "Gold", Symbol: "GLD", Amount: "1000", Owner: aliceWallet, Authority: recipient, Username: "alice", RequestID: id}
	err = suite.store.Commit(suite.ctx, core.Outcome{RequestID: id, ClaimToken: claimed[0].ClaimToken, Status: core.StatusConfirmed, TxHashes: []string{"0x01", "0x02"}, Token: token})
	suite.Require().NoError(err)

	req, err := suite.store.Get(suite.ctx, id)
	suite.Require().NoError(err)
	suite.Equal(core.StatusConfirmed, req.Status)

	stored, err := suite.store.TokenByRequest(suite.ctx, id)
	suite.Require().NoError(err)
	suite.Equal(*token, stored)

	var row models.Transaction
	suite.Require().NoError(suite.db.First(&row, id).Error)
	suite.Equal("0x01,0x02", row.TxHashes)
	suite.NotNil(row.CompletedAt)
}

func (suite *DBTestSuite) TestCommitFailed() {
	ids := suite.enqueue(1)
	claimed, err := suite.store.ClaimPending(suite.ctx, core.ClaimOptions{})
	suite.Require().NoError(err)
	suite.Require().Len(claimed, 1)

	err = suite.store.Commit(suite.ctx, core.Outcome{RequestID: ids[0], ClaimToken: claimed[0].ClaimToken, Status: core.StatusFailed, Reason: "contract_call_error", Error: "reverted"})
	suite.Require().NoError(err)

	var row models.Transaction
	suite.Require().NoError(suite.db.First(&row, ids[0]).Error)
	suite.Equal("failed", row.Status)
	suite.Equal("contract_call_error", row.StatusReason)
	suite.Equal("reverted", row.Error)

	_, err = suite.store.TokenByRequest(suite.ctx, ids[0])
	suite.Require().ErrorIs(err, dbTypes.ErrNotFound)
}

func (suite *DBTestSuite) TestCommitRejectsInvalidTransitions() {
	ids := suite.enqueue(1)

	// still pending
	err := suite.store.Commit(suite.ctx, core.Outcome{RequestID: ids[0], Status: core.StatusConfirmed})
	suite.Require().ErrorIs(err, core.ErrInvalidTransition)

	claimed, err := suite.store.ClaimPending(suite.ctx, core.ClaimOptions{})
	suite.Require().NoError(err)
	suite.Require().Len(claimed, 1)
	claim := claimed[0].ClaimToken

	err = suite.store.Commit(suite.ctx, core.Outcome{RequestID: ids[0], ClaimToken: claim, Status: core.StatusPending})
	suite.Require().ErrorIs(err, core.ErrInvalidTransition)

	err = suite.store.Commit(suite.ctx, core.Outcome{RequestID: ids[0], ClaimToken: claim, Status: core.StatusFailed, Token: &core.TokenRecord{Address: tokenAddress}})
	suite.Require().ErrorIs(err, core.ErrInvalidTransition)

	suite.Require().NoError(suite.store.Commit(suite.ctx, core.Outcome{RequestID: ids[0], ClaimToken: claim, Status: core.StatusFailed}))

	// terminal statuses are immutable
	err = suite.store.Commit(suite.ctx, core.Outcome{RequestID: ids[0], ClaimToken: claim, Status: core.StatusConfirmed})
	suite.Require().ErrorIs(err, core.ErrInvalidTransition)

	req, err := suite.store.Get(suite.ctx, ids[0])
	suite.Require().NoError(err)
	suite.Equal(core.StatusFailed, req.Status)
}

func (suite *DBTestSuite) TestReclaimFencesTheFirstClaim() {
	ids := suite.enqueue(1)
	start := time.Now().UTC()

	first, err := suite.store.ClaimPending(suite.ctx, core.ClaimOptions{Lease: time.Minute, ReclaimExpired: true, Now: start})
	suite.Require().NoError(err)
	suite.Require().Len(first, 1)
	suite.NotEmpty(first[0].ClaimToken)

	second, err := suite.store.ClaimPending(suite.ctx, core.ClaimOptions{Lease: time.Minute, ReclaimExpired: true, Now: start.Add(2 * time.Minute)})
	suite.Require().NoError(err)
	suite.Require().Len(second, 1)
	suite.NotEqual(first[0].ClaimToken, second[0].ClaimToken)

	// the first holder can neither extend nor commit once the row was reclaimed
	err = suite.store.Renew(suite.ctx, ids[0], first[0].ClaimToken, start.Add(3*time.Minute))
	suite.Require().ErrorIs(err, core.ErrInvalidTransition)
	err = suite.store.Commit(suite.ctx, core.Outcome{RequestID: ids[0], ClaimToken: first[0].ClaimToken, Status: core.StatusConfirmed})
	suite.Require().ErrorIs(err, core.ErrInvalidTransition)

	suite.Require().NoError(suite.store.Commit(suite.ctx, core.Outcome{RequestID: ids[0], ClaimToken: second[0].ClaimToken, Status: core.StatusFailed}))
	req, err := suite.store.Get(suite.ctx, ids[0])
	suite.Require().NoError(err)
	suite.Equal(core.StatusFailed, req.Status)
}

func (suite *DBTestSuite) TestRenewKeepsTheRowOutOfReclaim() {
	ids := suite.enqueue(1)
	start := time.Now().UTC().Truncate(time.Microsecond)

	claimed, err := suite.store.ClaimPending(suite.ctx, core.ClaimOptions{Lease: time.Minute, ReclaimExpired: true, Now: start})
	suite.Require().NoError(err)
	suite.Require().Len(claimed, 1)

	renewed := start.Add(5 * time.Minute)
	suite.Require().NoError(suite.store.Renew(suite.ctx, ids[0], claimed[0].ClaimToken, renewed))

	// past the original lease but inside the renewed one
	again, err := suite.store.ClaimPending(suite.ctx, core.ClaimOptions{Lease: time.Minute, ReclaimExpired: true, Now: start.Add(2 * time.Minute)})
	suite.Require().NoError(err)
	suite.Empty(again)

	req, err := suite.store.Get(suite.ctx, ids[0])
	suite.Require().NoError(err)
	suite.Require().NotNil(req.LeaseUntil)
	suite.True(renewed.Equal(*req.LeaseUntil))
	suite.Equal(claimed[0].ClaimToken, req.ClaimToken)

	err = suite.store.Renew(suite.ctx, ids[0], "not-the-claim", renewed)
	suite.Require().ErrorIs(err, core.ErrInvalidTransition)
}

func (suite *DBTestSuite) TestDuplicateTokenRollsBackStatus() {
	payload, _ := json.Marshal(core.CreateTokenPayload{Name: "Gold", Symbol: "GLD", Amount: "1000", Owner: aliceWallet})
	first, err := suite.store.Enqueue(suite.ctx, "alice", core.KindCreateToken, payload)
	suite.Require().NoError(err)
	second, err := suite.store.Enqueue(suite.ctx, "alice", core.KindCreateToken, payload)
	suite.Require().NoError(err)
	claimed, err := suite.store.ClaimPending(suite.ctx, core.ClaimOptions{})
	suite.Require().NoError(err)
	suite.Require().Len(claimed, 2)
	claim := claimed[0].ClaimToken

	suite.Require().NoError(suite.store.Commit(suite.ctx, core.Outcome{RequestID: first, ClaimToken: claim, Status: core.StatusConfirmed, Token: &core.TokenRecord{Address: tokenAddress, RequestID: first}}))

	err = suite.store.Commit(suite.ctx, core.Outcome{RequestID: second, ClaimToken: claim, Status: core.StatusConfirmed, Token: &core.TokenRecord{Address: tokenAddress, RequestID: second}})
	suite.Require().Error(err)
	suite.True(dbTypes.IsUniqueViolation(err))

	req, err := suite.store.Get(suite.ctx, second)
	suite.Require().NoError(err)
	suite.Equal(core.StatusInProgress, req.Status)
}

func (suite *DBTestSuite) TestGetNotFound() {
	_, err := suite.store.Get(suite.ctx, 424242)
	suite.Require().ErrorIs(err, dbTypes.ErrNotFound)
}

func TestDBTestSuite(t *testing.T) {
	suite.Run(t, new(DBTestSuite))
}
