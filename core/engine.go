package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/DefiantLabs/token-relayer/config"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type EngineConfig struct {
	// BatchSize caps how many pending requests one cycle claims, 0 means all of them.
	BatchSize int
	// Workers bounds how many requests are in flight at once. Requests start in claim order
	// and requests on the same token never overlap.
	Workers int
	// LeaseTimeout, when set, stamps a lease on claimed rows and lets later cycles reclaim expired ones.
	// The lease is renewed right before each request is dispatched.
	LeaseTimeout time.Duration
}

// Engine runs relay cycles: claim pending requests, dispatch each to its handler, commit one terminal status per request.
type Engine struct {
	store    RequestStore
	chain    ChainClient
	handlers *Handlers
	cfg      EngineConfig
	sinks    []OutcomeSink
	observer CycleObserver
	now      func() time.Time
	running  sync.Mutex
}

type EngineOption func(*Engine)

func WithSinks(sinks ...OutcomeSink) EngineOption {
	return func(e *Engine) {
		e.sinks = append(e.sinks, sinks...)
	}
}

func WithObserver(observer CycleObserver) EngineOption {
	return func(e *Engine) {
		e.observer = observer
	}
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(store RequestStore, chain ChainClient, handlers *Handlers, cfg EngineConfig, opts ...EngineOption) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	e := &Engine{
		store:    store,
		chain:    chain,
		handlers: handlers,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type job struct {
	req     Request
	payload Payload
	err     error
	outcome *Outcome
	// started closes once the job took its turn, done once it finished or was skipped
	started chan struct{}
	done    chan struct{}
}

// run is the dispatch state of one cycle.
type run struct {
	id    string
	mu    sync.Mutex
	fatal error
}

func (r *run) halt(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fatal == nil {
		r.fatal = err
	}
}

func (r *run) halted() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatal
}

// RunOnce executes a single cycle. A failed preflight or claim returns an error, and so does a
// configuration error raised while dispatching, which stops the cycle. Other per-request failures
// are committed as Failed and reported in the counts.
func (e *Engine) RunOnce(ctx context.Context) (CycleReport, error) {
	if !e.running.TryLock() {
		return CycleReport{}, ErrCycleInProgress
	}
	defer e.running.Unlock()

	start := e.now()
	report := CycleReport{CycleID: uuid.NewString()}
	config.Log.ZInfo().Str("cycle", report.CycleID).Msg("*** START relay cycle ***")

	if err := e.chain.Health(ctx); err != nil {
		err = wrapClass(ErrNetwork, "chain preflight", err)
		e.abort(report, err)
		return report, err
	}

	claimed, err := e.store.ClaimPending(ctx, ClaimOptions{
		Limit:          e.cfg.BatchSize,
		Lease:          e.cfg.LeaseTimeout,
		ReclaimExpired: e.cfg.LeaseTimeout > 0,
		Now:            start,
	})
	if err != nil {
		err = fmt.Errorf("claim pending requests: %w", err)
		e.abort(report, err)
		return report, err
	}

	cycle := &run{id: report.CycleID}
	if len(claimed) == 0 {
		config.Log.Debugf("Cycle %s: no pending requests", report.CycleID)
	} else {
		config.Log.Infof("Cycle %s: claimed %d requests", report.CycleID, len(claimed))
		for _, j := range e.process(ctx, cycle, claimed) {
			if j.outcome == nil {
				report.Uncommitted++
				continue
			}
			switch j.outcome.Status {
			case StatusConfirmed:
				report.Confirmed++
			case StatusFailed:
				report.Failed++
			}
		}
	}

	report.Processed = len(claimed)
	report.Duration = e.now().Sub(start)
	if e.observer != nil {
		e.observer.ObserveCycle(report)
	}

	if fatal := cycle.halted(); fatal != nil {
		err := fmt.Errorf("cycle %s halted: %w", report.CycleID, fatal)
		config.Log.ZError().
			Str("cycle", report.CycleID).
			Int("confirmed", report.Confirmed).
			Int("failed", report.Failed).
			Int("uncommitted", report.Uncommitted).
			Err(fatal).
			Msg("*** HALTED relay cycle ***")
		if e.observer != nil {
			e.observer.ObserveAbort(err)
		}
		return report, err
	}

	config.Log.ZInfo().
		Str("cycle", report.CycleID).
		Int("processed", report.Processed).
		Int("confirmed", report.Confirmed).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Msg("*** END relay cycle ***")
	return report, nil
}

func (e *Engine) abort(report CycleReport, err error) {
	config.Log.Error(fmt.Sprintf("Cycle %s aborted before dispatch", report.CycleID), err)
	if e.observer != nil {
		e.observer.ObserveAbort(err)
	}
}

// process decodes every claimed request and runs them with at most Workers in flight.
// Every job starts after all earlier-claimed jobs have started, and a job on a token
// waits for the previous job on that token to finish.
func (e *Engine) process(ctx context.Context, cycle *run, claimed []Request) []*job {
	jobs := make([]*job, 0, len(claimed))
	for _, req := range claimed {
		payload, err := DecodePayload(req.Kind, req.Payload)
		jobs = append(jobs, &job{
			req:     req,
			payload: payload,
			err:     err,
			started: make(chan struct{}),
			done:    make(chan struct{}),
		})
	}

	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	tails := make(map[string]*job)
	var prev *job
	for _, j := range jobs {
		if cycle.halted() != nil {
			break
		}
		var tail *job
		if key := laneKey(j); key != "" {
			tail = tails[key]
			tails[key] = j
		}
		j, before := j, prev
		g.Go(func() error {
			defer close(j.done)
			if before != nil {
				<-before.started
			}
			if tail != nil {
				<-tail.done
			}
			close(j.started)
			if cycle.halted() == nil {
				e.execute(ctx, cycle, j)
			}
			return nil
		})
		prev = j
	}
	_ = g.Wait()

	return jobs
}

func laneKey(j *job) string {
	switch p := j.payload.(type) {
	case MintTokenPayload:
		return strings.ToLower(p.TokenAddress)
	case TransferTokenPayload:
		return strings.ToLower(p.TokenAddress)
	case BurnTokenPayload:
		return strings.ToLower(p.TokenAddress)
	}
	return ""
}

func (e *Engine) execute(ctx context.Context, cycle *run, j *job) {
	if e.cfg.LeaseTimeout > 0 {
		if err := e.store.Renew(ctx, j.req.ID, j.req.ClaimToken, e.now().Add(e.cfg.LeaseTimeout)); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				config.Log.Warnf("Request %d was reclaimed by another relayer, skipping it", j.req.ID)
			} else {
				config.Log.Error(fmt.Sprintf("Could not renew the lease on request %d, skipping it", j.req.ID), err)
			}
			return
		}
	}

	var result Result
	err := j.err
	if err == nil {
		config.Log.Infof("Processing %s request %d", j.req.Kind, j.req.ID)
		result, err = e.handlers.Dispatch(ctx, j.req, j.payload)
	}

	// a configuration error leaves the request in progress and stops dispatching
	if errors.Is(err, ErrConfiguration) {
		config.Log.ZError().
			Str("cycle", cycle.id).
			Uint64("request", j.req.ID).
			Err(err).
			Msg("Configuration error, halting dispatch")
		cycle.halt(err)
		return
	}

	outcome := Outcome{
		CycleID:     cycle.id,
		RequestID:   j.req.ID,
		ClaimToken:  j.req.ClaimToken,
		Kind:        j.req.Kind,
		Status:      StatusConfirmed,
		TxHashes:    result.txHashes(),
		CompletedAt: e.now(),
	}
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Reason = Classify(err)
		outcome.Error = err.Error()
		config.Log.ZInfo().
			Uint64("request", j.req.ID).
			Str("kind", string(j.req.Kind)).
			Str("reason", outcome.Reason).
			Err(err).
			Msg("Request failed")
	} else {
		outcome.Token = result.Token
	}

	// a submitted transaction cannot be withdrawn, so its outcome is committed even if the cycle is being cancelled
	commitCtx := context.WithoutCancel(ctx)
	if err := e.store.Commit(commitCtx, outcome); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			config.Log.Errorf("Request %d is no longer held by this cycle, outcome %s dropped", j.req.ID, outcome.Status)
		} else {
			config.Log.Error(fmt.Sprintf("Failed to commit %s for request %d, it stays in progress", outcome.Status, j.req.ID), err)
		}
		return
	}
	j.outcome = &outcome

	if e.observer != nil {
		e.observer.ObserveOutcome(outcome)
	}
	for _, sink := range e.sinks {
		if err := sink.RecordOutcome(commitCtx, outcome); err != nil {
			config.Log.ZWarn().
				Uint64("request", j.req.ID).
				Str("sink", fmt.Sprintf("%T", sink)).
				Err(err).
				Msg("Outcome sink failed")
		}
	}
}

func wrapClass(class error, op string, err error) error {
	if errors.Is(err, class) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", class, op, err)
}
