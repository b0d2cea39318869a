package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"
)

// memoryStore is a RequestStore over a map, enforcing the same transition rules as the database store.
type memoryStore struct {
	mu       sync.Mutex
	requests map[uint64]*Request
	tokens   []TokenRecord
	outcomes []Outcome
	writes   int
	claimErr error
	// commitErr fails Commit for the listed request ids
	commitErr map[uint64]error
	claims    int
	renewals  []uint64
}

func newMemoryStore(requests ...Request) *memoryStore {
	s := &memoryStore{requests: make(map[uint64]*Request), commitErr: make(map[uint64]error)}
	for i := range requests {
		req := requests[i]
		if req.Status == "" {
			req.Status = StatusPending
		}
		s.requests[req.ID] = &req
	}
	return s
}

func (s *memoryStore) ClaimPending(_ context.Context, opts ClaimOptions) ([]Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return nil, s.claimErr
	}

	var ids []uint64
	for id, req := range s.requests {
		if req.Status == StatusPending {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if opts.Limit > 0 && len(ids) > opts.Limit {
		ids = ids[:opts.Limit]
	}

	s.claims++
	token := fmt.Sprintf("claim-%d", s.claims)
	claimed := make([]Request, 0, len(ids))
	for _, id := range ids {
		req := s.requests[id]
		req.Status = StatusInProgress
		now := opts.Now
		req.ClaimedAt = &now
		req.ClaimToken = token
		if opts.Lease > 0 {
			until := now.Add(opts.Lease)
			req.LeaseUntil = &until
		}
		s.writes++
		claimed = append(claimed, *req)
	}
	return claimed, nil
}

func (s *memoryStore) Commit(_ context.Context, outcome Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.commitErr[outcome.RequestID]; err != nil {
		return err
	}
	req, ok := s.requests[outcome.RequestID]
	if !ok || req.ClaimToken != outcome.ClaimToken || !CanTransition(req.Status, outcome.Status) {
		return ErrInvalidTransition
	}
	req.Status = outcome.Status
	if outcome.Status == StatusConfirmed && outcome.Token != nil {
		s.tokens = append(s.tokens, *outcome.Token)
	}
	s.outcomes = append(s.outcomes, outcome)
	s.writes++
	return nil
}

func (s *memoryStore) Renew(_ context.Context, requestID uint64, claimToken string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok || req.Status != StatusInProgress || req.ClaimToken != claimToken {
		return ErrInvalidTransition
	}
	req.LeaseUntil = &until
	s.renewals = append(s.renewals, requestID)
	s.writes++
	return nil
}

// reclaim hands a request to another relayer, as an expired lease would.
func (s *memoryStore) reclaim(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[id].ClaimToken = fmt.Sprintf("elsewhere-%d", id)
}

func (s *memoryStore) status(id uint64) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[id].Status
}

type invocation struct {
	contract string
	method   string
	args     []interface{}
}

// fakeChain records every call and fails the ones configured to fail.
type fakeChain struct {
	mu          sync.Mutex
	healthErr   error
	decimals    map[string]uint8
	deployErr   map[string]error
	invokeErr   error
	deployed    []string
	invocations []invocation
	// block, when set, is waited on inside Invoke
	block chan struct{}
	// onInvoke, when set, runs before each Invoke is recorded
	onInvoke func(contract string)
	calls    int
}

func newFakeChain() *fakeChain {
	return &fakeChain{decimals: make(map[string]uint8), deployErr: make(map[string]error)}
}

func (c *fakeChain) Health(context.Context) error {
	return c.healthErr
}

func (c *fakeChain) Deploy(_ context.Context, artifact string, _ Identity, _ ...interface{}) (string, Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if err := c.deployErr[artifact]; err != nil {
		return "", Receipt{}, err
	}
	c.deployed = append(c.deployed, artifact)
	address := fmt.Sprintf("0x%040x", len(c.deployed))
	return address, Receipt{TxHash: fmt.Sprintf("0xdeploy%d", len(c.deployed)), BlockNumber: uint64(len(c.deployed))}, nil
}

func (c *fakeChain) Invoke(_ context.Context, contract, _, method string, _ Identity, args ...interface{}) (Receipt, error) {
	if c.block != nil {
		<-c.block
	}
	if c.onInvoke != nil {
		c.onInvoke(contract)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.invokeErr != nil {
		return Receipt{}, c.invokeErr
	}
	c.invocations = append(c.invocations, invocation{contract: contract, method: method, args: args})
	return Receipt{TxHash: fmt.Sprintf("0xinvoke%d", len(c.invocations)), BlockNumber: 100}, nil
}

func (c *fakeChain) Read(_ context.Context, contract, _, method string, _ ...interface{}) ([]interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if method != "decimals" {
		return nil, fmt.Errorf("%w: unexpected read %s", ErrContractCall, method)
	}
	d, ok := c.decimals[contract]
	if !ok {
		return nil, fmt.Errorf("%w: no contract at %s", ErrContractCall, contract)
	}
	return []interface{}{d}, nil
}

func (c *fakeChain) invoked() []invocation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]invocation(nil), c.invocations...)
}

type recordingSink struct {
	mu       sync.Mutex
	outcomes []Outcome
	err      error
}

func (s *recordingSink) RecordOutcome(_ context.Context, outcome Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcome)
	return s.err
}

type recordingObserver struct {
	mu       sync.Mutex
	cycles   []CycleReport
	outcomes []Outcome
	aborts   []error
}

func (o *recordingObserver) ObserveCycle(report CycleReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cycles = append(o.cycles, report)
}

func (o *recordingObserver) ObserveOutcome(outcome Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) ObserveAbort(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.aborts = append(o.aborts, err)
}

var errConnectionRefused = errors.New("dial tcp 127.0.0.1:8545: connection refused")

func rawJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func weiAmount(whole int64, decimals int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), new(big.Int).Exp(big.NewInt(10), big.NewInt(decimals), nil))
}

func fixedClock() func() time.Time {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}
