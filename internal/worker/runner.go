// Package worker drives the claim protocol in a loop: claim a trial, run it
// outside the lock, mark it done, repeat until the sweep has nothing left.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/sweeper/internal/claim"
	"github.com/Iron-Ham/sweeper/internal/errors"
	"github.com/Iron-Ham/sweeper/internal/logging"
)

// Summary reports what a Run did.
type Summary struct {
	Claimed   int
	Completed int
	Failed    int
	// Lost counts trials that ran but were no longer owned by the run ID
	// when marked done, for example because the record was reset by hand.
	Lost int
	// Stop is the outcome of the claim attempt that ended the loop.
	Stop claim.Outcome
}

func (s *Summary) add(o Summary) {
	s.Claimed += o.Claimed
	s.Completed += o.Completed
	s.Failed += o.Failed
	s.Lost += o.Lost
	s.Stop = o.Stop
}

// Runner runs trials of one sweep until none are left.
type Runner struct {
	sweepDir      string
	sweepID       string
	protocol      *claim.Protocol
	executor      Executor
	logger        *logging.Logger
	runIDPrefix   string
	stopOnFailure bool
	maxTrials     int
	newRunID      func() string
}

// Option configures a Runner.
type Option func(*Runner)

// WithProtocol sets the claim protocol.
func WithProtocol(p *claim.Protocol) Option {
	return func(r *Runner) {
		r.protocol = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithRunIDPrefix prefixes every generated run ID.
func WithRunIDPrefix(prefix string) Option {
	return func(r *Runner) {
		r.runIDPrefix = prefix
	}
}

// WithStopOnFailure makes Run return the first executor error instead of
// moving on to the next trial.
func WithStopOnFailure(stop bool) Option {
	return func(r *Runner) {
		r.stopOnFailure = stop
	}
}

// WithMaxTrials stops Run after n claimed trials. Zero means no limit.
func WithMaxTrials(n int) Option {
	return func(r *Runner) {
		r.maxTrials = n
	}
}

// WithRunIDFunc replaces run ID generation.
func WithRunIDFunc(f func() string) Option {
	return func(r *Runner) {
		r.newRunID = f
	}
}

// NewRunner creates a Runner for the sweep in sweepDir.
func NewRunner(sweepID, sweepDir string, exec Executor, opts ...Option) *Runner {
	r := &Runner{
		sweepDir: sweepDir,
		sweepID:  sweepID,
		executor: exec,
		logger:   logging.NopLogger(),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.protocol == nil {
		r.protocol = claim.New(claim.WithLogger(r.logger))
	}
	return r
}

// RunID returns a fresh run ID.
func (r *Runner) RunID() string {
	return r.runIDPrefix + r.newRunID()
}

// Run claims and executes trials one at a time until the sweep has none
// left, the context is canceled, or the trial limit is reached. Every trial
// gets a fresh run ID.
//
// A failed trial stays running and is not retried.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if r.maxTrials > 0 && sum.Claimed >= r.maxTrials {
			return sum, nil
		}

		runID := r.RunID()
		log := r.logger.WithSweep(r.sweepID).WithWorker(runID)

		res, err := r.claim(ctx, runID)
		if err != nil {
			return sum, err
		}
		if res.Trial == nil {
			sum.Stop = res.Outcome
			log.Info("worker finished", "reason", res.Outcome.String(),
				"completed", sum.Completed, "failed", sum.Failed, "lost", sum.Lost)
			return sum, nil
		}
		sum.Claimed++

		job := Job{
			SweepID:  r.sweepID,
			SweepDir: r.sweepDir,
			RunID:    runID,
			Index:    res.Index,
			Params:   res.Trial.Params,
		}
		tlog := log.WithTrial(res.Index)
		tlog.WithPhase("execute").Info("running trial")

		if err := r.executor.Execute(ctx, job); err != nil {
			sum.Failed++
			tlog.WithPhase("execute").Error("trial failed", "error", err.Error())
			if r.stopOnFailure {
				return sum, errors.NewSweepError("trial failed", err).
					WithSweepID(r.sweepID).WithRunID(runID)
			}
			continue
		}

		done, err := r.protocol.MarkDone(ctx, r.sweepDir, runID)
		if err != nil {
			return sum, err
		}
		if done == nil {
			sum.Lost++
			tlog.WithPhase("mark-done").Warn("trial no longer owned by this run")
			continue
		}
		sum.Completed++
	}
}

// claim runs claim-next, claiming again under the same run ID when the first
// attempt only upgraded an untracked record.
func (r *Runner) claim(ctx context.Context, runID string) (claim.Result, error) {
	for {
		res, err := r.protocol.Run(ctx, r.sweepDir, runID, claim.ModeClaimNext)
		if err != nil {
			return res, err
		}
		if res.Outcome != claim.OutcomeUpgraded {
			return res, nil
		}
	}
}

// RunParallel runs n copies of the loop concurrently, each holding its own
// lock handle, and returns the combined summary. With stop-on-failure the
// first error cancels the others.
func (r *Runner) RunParallel(ctx context.Context, n int) (Summary, error) {
	if n < 1 {
		return Summary{}, errors.NewValidationError("parallelism must be at least 1").
			WithField("parallel").WithValue(n)
	}
	if n == 1 {
		return r.Run(ctx)
	}

	var (
		mu    sync.Mutex
		total Summary
	)
	p := pool.New().WithContext(ctx).WithMaxGoroutines(n)
	if r.stopOnFailure {
		p = p.WithCancelOnError().WithFirstError()
	}
	for i := 0; i < n; i++ {
		slot := i
		p.Go(func(ctx context.Context) error {
			sum, err := r.Run(ctx)
			mu.Lock()
			total.add(sum)
			mu.Unlock()
			if err != nil {
				return fmt.Errorf("worker %d: %w", slot, err)
			}
			return nil
		})
	}
	err := p.Wait()
	return total, err
}
