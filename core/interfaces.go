package core

import (
	"context"
	"time"
)

// RequestStore is the durable queue of requests plus the token registry.
type RequestStore interface {
	// ClaimPending atomically moves the selected requests to InProgress under a fresh claim token
	// and returns them ordered by id. Nothing is written when there is nothing to claim.
	ClaimPending(ctx context.Context, opts ClaimOptions) ([]Request, error)

	// Renew pushes the lease of a request held under claimToken out to until.
	// Returns ErrInvalidTransition if the request was reclaimed or is no longer InProgress.
	Renew(ctx context.Context, requestID uint64, claimToken string, until time.Time) error

	// Commit writes the terminal status of a request still held under outcome.ClaimToken. A confirmed
	// outcome carrying a token registers it in the same transaction. Returns ErrInvalidTransition if the
	// request is not InProgress or was reclaimed under another token.
	Commit(ctx context.Context, outcome Outcome) error
}

type ClaimOptions struct {
	// Limit caps the batch, 0 claims every pending request.
	Limit int
	// Lease is recorded on each claimed row. Zero leaves the lease unset.
	Lease time.Duration
	// ReclaimExpired also claims InProgress rows whose lease ran out before Now.
	ReclaimExpired bool
	Now            time.Time
}

// ChainClient is the blockchain capability the handlers drive. Addresses are 0x-prefixed hex.
type ChainClient interface {
	// Health checks the RPC endpoint is reachable.
	Health(ctx context.Context) error
	// Deploy submits the named artifact's bytecode and waits until it is mined.
	Deploy(ctx context.Context, artifact string, signer Identity, args ...interface{}) (string, Receipt, error)
	// Invoke submits a state-changing call and waits until it is mined.
	Invoke(ctx context.Context, contract string, artifact string, method string, signer Identity, args ...interface{}) (Receipt, error)
	// Read performs a view call against an ABI fragment.
	Read(ctx context.Context, contract string, abiFragment string, method string, args ...interface{}) ([]interface{}, error)
}

// OutcomeSink receives every committed outcome. Failures are logged by the engine and never affect the commit.
type OutcomeSink interface {
	RecordOutcome(ctx context.Context, outcome Outcome) error
}

// CycleObserver is notified of cycle level events, typically to export metrics.
type CycleObserver interface {
	ObserveCycle(report CycleReport)
	ObserveOutcome(outcome Outcome)
	ObserveAbort(err error)
}
