// Package claim implements the protocol workers run to take the next trial of
// a sweep or to mark one of theirs done.
//
// Every invocation runs inside a single critical section of the sweep's
// advisory lock: repair the primary encoding if needed, read the trial list
// (retrying torn reads), change exactly one trial, write both encodings back.
// Trials only move forward, unclaimed to running to done. A worker that dies
// between claiming and completing leaves its trial running.
//
// Usage:
//
//	p := claim.New(claim.WithLogger(logger))
//
//	t, err := p.ClaimNext(ctx, sweepDir, runID)
//	if t != nil && t.State == trial.StateRunning {
//	    // ... run the trial ...
//	    _, err = p.MarkDone(ctx, sweepDir, runID)
//	}
package claim

import (
	"context"
	"path/filepath"
	"time"

	"github.com/Iron-Ham/sweeper/internal/errors"
	"github.com/Iron-Ham/sweeper/internal/filelock"
	"github.com/Iron-Ham/sweeper/internal/logging"
	"github.com/Iron-Ham/sweeper/internal/trial"
	"github.com/Iron-Ham/sweeper/internal/trialstore"
)

// DefaultMaxReadAttempts bounds how often a corrupt primary encoding is
// re-read before the call gives up.
const DefaultMaxReadAttempts = 10000

// Mode selects what a protocol invocation does.
type Mode int

const (
	// ModeClaimNext claims the first unclaimed trial in list order.
	ModeClaimNext Mode = iota
	// ModeMarkDone completes the trial owned by the caller's run ID.
	ModeMarkDone
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeClaimNext:
		return "claim-next"
	case ModeMarkDone:
		return "mark-done"
	default:
		return "unknown"
	}
}

// Outcome describes why an invocation returned what it did.
type Outcome int

const (
	// OutcomeClaimed means a trial moved to running for the caller.
	OutcomeClaimed Outcome = iota
	// OutcomeUpgraded means an untracked record gained protocol fields but
	// was not claimed; claim again to take it.
	OutcomeUpgraded
	// OutcomeCompleted means the caller's trial is now done.
	OutcomeCompleted
	// OutcomeExhausted means no trial matched.
	OutcomeExhausted
	// OutcomeEmpty means the sweep holds no trials.
	OutcomeEmpty
	// OutcomeUnreadable means the primary encoding never decoded within the
	// read attempt budget.
	OutcomeUnreadable
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeClaimed:
		return "claimed"
	case OutcomeUpgraded:
		return "upgraded"
	case OutcomeCompleted:
		return "completed"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeEmpty:
		return "empty"
	case OutcomeUnreadable:
		return "unreadable"
	default:
		return "unknown"
	}
}

// Result is the detailed outcome of one protocol invocation.
type Result struct {
	// Trial is a copy of the changed trial, nil when nothing changed.
	Trial *trial.Trial
	// Index is the trial's position in the list, -1 when Trial is nil.
	Index   int
	Outcome Outcome
}

// Protocol runs claim and completion requests against sweep directories.
// It holds no per-sweep state; the sweep directory is passed on every call.
type Protocol struct {
	coord           *filelock.Coordinator
	logger          *logging.Logger
	maxReadAttempts int
	readBackoff     time.Duration
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithCoordinator sets the lock coordinator.
func WithCoordinator(c *filelock.Coordinator) Option {
	return func(p *Protocol) {
		p.coord = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Protocol) {
		p.logger = l
	}
}

// WithMaxReadAttempts bounds the corrupt-read retry loop.
func WithMaxReadAttempts(n int) Option {
	return func(p *Protocol) {
		p.maxReadAttempts = n
	}
}

// WithReadBackoff sets a pause between corrupt-read retries. Zero retries
// immediately.
func WithReadBackoff(d time.Duration) Option {
	return func(p *Protocol) {
		p.readBackoff = d
	}
}

// New creates a Protocol. Without options it uses a default Coordinator,
// DefaultMaxReadAttempts and a no-op logger.
func New(opts ...Option) *Protocol {
	p := &Protocol{
		logger:          logging.NopLogger(),
		maxReadAttempts: DefaultMaxReadAttempts,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.coord == nil {
		p.coord = filelock.NewCoordinator(filelock.WithLogger(p.logger))
	}
	if p.maxReadAttempts < 1 {
		p.maxReadAttempts = 1
	}
	return p
}

// ClaimNext claims the next available trial for runID. It returns nil when
// no trial is available.
func (p *Protocol) ClaimNext(ctx context.Context, sweepDir, runID string) (*trial.Trial, error) {
	return p.ClaimOrComplete(ctx, sweepDir, runID, ModeClaimNext)
}

// MarkDone completes the trial claimed under runID. It returns nil when no
// claimed trial carries runID.
func (p *Protocol) MarkDone(ctx context.Context, sweepDir, runID string) (*trial.Trial, error) {
	return p.ClaimOrComplete(ctx, sweepDir, runID, ModeMarkDone)
}

// ClaimOrComplete runs one protocol invocation and returns the changed trial,
// or nil when no trial is eligible. Only bootstrap and lock failures are
// returned as errors.
func (p *Protocol) ClaimOrComplete(ctx context.Context, sweepDir, runID string, mode Mode) (*trial.Trial, error) {
	res, err := p.Run(ctx, sweepDir, runID, mode)
	if err != nil {
		return nil, err
	}
	return res.Trial, nil
}

// Run is ClaimOrComplete with the detailed Result.
func (p *Protocol) Run(ctx context.Context, sweepDir, runID string, mode Mode) (Result, error) {
	sweepID := filepath.Base(sweepDir)
	if runID == "" {
		return Result{Index: -1}, errors.NewSweepError("run ID must not be empty", errors.ErrInvalidInput).WithSweepID(sweepID)
	}

	log := p.logger.WithSweep(sweepID).WithWorker(runID).WithPhase(mode.String())
	store := trialstore.New(sweepDir)

	var res Result
	err := p.coord.WithLock(ctx, sweepDir, func() error {
		var err error
		res, err = p.critical(store, runID, mode, log)
		return err
	})
	if err != nil {
		var lockErr *errors.LockError
		if errors.As(err, &lockErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{Index: -1}, err
		}
		return Result{Index: -1}, errors.NewSweepError("claim protocol failed", err).WithSweepID(sweepID).WithRunID(runID)
	}

	switch res.Outcome {
	case OutcomeUnreadable:
		log.Warn("trial list never decoded; giving up", "attempts", p.maxReadAttempts)
	case OutcomeExhausted, OutcomeEmpty:
		log.Info("no trial available", "outcome", res.Outcome.String())
	default:
		log.WithTrial(res.Index).Info("trial updated", "outcome", res.Outcome.String(), "state", res.Trial.State.String())
	}
	return res, nil
}

// critical is the body run under the sweep lock.
func (p *Protocol) critical(store *trialstore.Store, runID string, mode Mode, log *logging.Logger) (Result, error) {
	none := Result{Index: -1}

	repaired, err := store.Repair()
	if err != nil {
		return none, err
	}
	if repaired {
		log.Warn("rebuilt primary trial list from jsonl")
	}

	trials, ok, err := p.readWithRetry(store, log)
	if err != nil {
		return none, err
	}
	if !ok {
		none.Outcome = OutcomeUnreadable
		return none, nil
	}
	if len(trials) == 0 {
		none.Outcome = OutcomeEmpty
		return none, nil
	}

	idx, outcome := scan(trials, runID, mode)
	if idx < 0 {
		none.Outcome = OutcomeExhausted
		return none, nil
	}

	if err := store.WriteAll(trials); err != nil {
		return none, err
	}

	changed := trials[idx].Clone()
	return Result{Trial: &changed, Index: idx, Outcome: outcome}, nil
}

// readWithRetry re-reads a corrupt primary encoding up to maxReadAttempts
// times. ok is false when every attempt was corrupt.
func (p *Protocol) readWithRetry(store *trialstore.Store, log *logging.Logger) ([]trial.Trial, bool, error) {
	for attempt := 1; attempt <= p.maxReadAttempts; attempt++ {
		res, err := store.ReadAll()
		if err != nil {
			return nil, false, err
		}
		if !res.Corrupt {
			if attempt > 1 {
				log.Debug("trial list decoded after retries", "attempts", attempt)
			}
			return res.Trials, true, nil
		}
		if p.readBackoff > 0 {
			time.Sleep(p.readBackoff)
		}
	}
	return nil, false, nil
}

// scan applies the request to the first eligible trial, in list order, and
// returns its index, or -1 when none is eligible.
//
// Claim-next takes the first untracked or unclaimed trial. An untracked one
// is only upgraded (run ID recorded, left unclaimed); an unclaimed one is
// claimed.
//
// Mark-done completes the first running trial owned by runID. If there is
// none, the first done trial owned by runID is matched again so repeated
// completion is harmless.
func scan(trials []trial.Trial, runID string, mode Mode) (int, Outcome) {
	switch mode {
	case ModeClaimNext:
		for i := range trials {
			t := &trials[i]
			switch t.State {
			case trial.StateUntracked:
				_ = t.Upgrade(runID)
				return i, OutcomeUpgraded
			case trial.StateUnclaimed:
				_ = t.Claim(runID)
				return i, OutcomeClaimed
			}
		}
	case ModeMarkDone:
		done := -1
		for i := range trials {
			t := &trials[i]
			if t.RunID != runID {
				continue
			}
			switch t.State {
			case trial.StateRunning:
				_ = t.Complete()
				return i, OutcomeCompleted
			case trial.StateDone:
				if done < 0 {
					done = i
				}
			}
		}
		if done >= 0 {
			return done, OutcomeCompleted
		}
	}
	return -1, OutcomeExhausted
}
