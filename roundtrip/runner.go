package roundtrip

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/roundtrip-labs/roundtrip-node/metrics"
	"go.uber.org/zap"
)

var (
	ErrNoOutcomeYet     = errors.New("no iteration finished yet")
	ErrRetriesExhausted = errors.New("retry policy gave up")
)

type Iteration interface {
	RunIteration(ctx context.Context) (Outcome, error)
}

// OutcomeHook is called after every iteration, aborted ones included.
type OutcomeHook func(ctx context.Context, outcome Outcome)

// RetryPolicy names the backoff used after an aborted iteration.
type RetryPolicy string

const (
	RetryConstant    RetryPolicy = "constant"
	RetryExponential RetryPolicy = "exponential"
)

// NewRetryBackOff builds the pacing policy for aborted iterations. The constant policy retries
// at the normal pace forever; the exponential one grows up to maxInterval and never gives up.
func NewRetryBackOff(policy RetryPolicy, pace, maxInterval time.Duration) (backoff.BackOff, error) {
	switch policy {
	case RetryConstant, "":
		return backoff.NewConstantBackOff(pace), nil
	case RetryExponential:
		back := backoff.NewExponentialBackOff()
		back.InitialInterval = pace
		back.MaxInterval = maxInterval
		back.MaxElapsedTime = 0
		back.Reset()
		return back, nil
	default:
		return nil, fmt.Errorf("unknown retry policy %q", policy)
	}
}

// Runner drives iterations one after another. Iteration N+1 starts only after
// iteration N has finished and its pace delay has passed.
type Runner struct {
	log       *zap.Logger
	iteration Iteration
	pace      time.Duration
	retry     backoff.BackOff
	hooks     []OutcomeHook

	mu    sync.RWMutex
	count uint64
	last  *Outcome
}

func NewRunner(log *zap.Logger, iteration Iteration, pace time.Duration, retry backoff.BackOff, hooks ...OutcomeHook) *Runner {
	if retry == nil {
		retry = backoff.NewConstantBackOff(pace)
	}
	return &Runner{
		log:       log.Named("runner"),
		iteration: iteration,
		pace:      pace,
		retry:     retry,
		hooks:     hooks,
	}
}

// Run loops until ctx is done. It returns an error only for a fatal condition.
func (r *Runner) Run(ctx context.Context) error {
	r.retry.Reset()
	for {
		if ctx.Err() != nil {
			return nil
		}

		outcome, err := r.RunOnce(ctx)
		if err != nil && IsFatal(err) {
			r.log.Error("Fatal iteration error, stopping", zap.Error(err))
			return err
		}

		delay := r.pace
		if outcome.Status == StatusAborted {
			delay = r.retry.NextBackOff()
			if delay == backoff.Stop {
				return ErrRetriesExhausted
			}
		} else {
			r.retry.Reset()
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce runs a single iteration and handles its result: logs, metrics, hooks.
// Errors, panics included, stop here and are only returned for the caller to classify.
func (r *Runner) RunOnce(ctx context.Context) (outcome Outcome, err error) {
	r.mu.Lock()
	r.count++
	n := r.count
	r.mu.Unlock()

	started := time.Now()
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				outcome = Outcome{StartedAt: started, Duration: time.Since(started)}
				err = fmt.Errorf("iteration panicked: %v", rec) //nolint:goerr113
			}
		}()
		outcome, err = r.iteration.RunIteration(ctx)
	}()
	if outcome.StartedAt.IsZero() {
		outcome.StartedAt = started
		outcome.Duration = time.Since(started)
	}
	outcome.Iteration = n
	if err != nil {
		outcome.Status = StatusAborted
		outcome.Error = err.Error()
	}

	metrics.IncIterations()
	metrics.RecordIterationDuration(outcome.Duration.Milliseconds())

	logger := r.log.With(zap.Uint64("iteration", n))
	switch {
	case err != nil:
		stage := string(outcome.Stage)
		if stage == "" {
			stage = "unknown"
		}
		metrics.IncIterationsAborted(stage)
		logger.Warn("Iteration aborted", zap.String("stage", stage), zap.Error(err), zap.Duration("duration", outcome.Duration))
	case outcome.Status == StatusSubmitted:
		metrics.IncBundlesSubmitted()
		logger.Info("Bundle submitted",
			zap.String("bundle_id", outcome.BundleID),
			zap.String("sol_profit", outcome.Profit.String()),
			zap.String("tip_recipient", outcome.Recipient),
		)
	default:
		metrics.IncBundlesSkipped()
		logger.Info("Bundle skipped, not profitable", zap.String("sol_profit", outcome.Profit.String()))
	}

	r.mu.Lock()
	last := outcome
	r.last = &last
	r.mu.Unlock()

	for _, hook := range r.hooks {
		hook(ctx, outcome)
	}
	return outcome, err
}

// LastOutcome is exposed read-only over JSON-RPC.
func (r *Runner) LastOutcome(_ context.Context) (Outcome, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return Outcome{}, ErrNoOutcomeYet
	}
	return *r.last, nil
}
