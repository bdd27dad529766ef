package filelock

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/Iron-Ham/sweeper/internal/errors"
	"github.com/Iron-Ham/sweeper/internal/logging"
)

// DefaultMaxJitter is the upper bound of the pre-lock sleep.
const DefaultMaxJitter = 10 * time.Second

// Coordinator runs critical sections under a sweep directory's lock.
type Coordinator struct {
	maxJitter   time.Duration
	lockTimeout time.Duration
	logger      *logging.Logger
	jitter      func(limit time.Duration) time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMaxJitter sets the upper bound of the random pre-lock sleep.
// Zero disables the sleep.
func WithMaxJitter(d time.Duration) Option {
	return func(c *Coordinator) {
		c.maxJitter = d
	}
}

// WithLockTimeout bounds how long acquisition may block. Zero (the default)
// blocks until the lock is granted.
func WithLockTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.lockTimeout = d
	}
}

// WithLogger sets the logger used for lock diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// NewCoordinator creates a Coordinator with a DefaultMaxJitter pre-lock sleep.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		maxJitter: DefaultMaxJitter,
		logger:    logging.NopLogger(),
		jitter:    uniformJitter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// uniformJitter returns a duration drawn uniformly from [0, limit).
func uniformJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(limit)))
}

// WithLock sleeps a random jitter, takes the exclusive lock on dir, runs body
// and releases the lock on every exit path. Failing to take the lock is
// reported as a *errors.LockError and body is not run.
func (c *Coordinator) WithLock(ctx context.Context, dir string, body func() error) (err error) {
	if err := c.sleepJitter(ctx); err != nil {
		return err
	}

	fl := NewFileLock(dir)
	if err := c.acquire(ctx, fl); err != nil {
		return err
	}
	c.logger.Debug("lock acquired", "path", fl.Path())

	defer func() {
		if unlockErr := fl.Unlock(); unlockErr != nil {
			c.logger.Error("failed to release lock", "path", fl.Path(), "error", unlockErr.Error())
			if err == nil {
				err = errors.NewLockError("release", unlockErr).WithPath(fl.Path())
			}
			return
		}
		c.logger.Debug("lock released", "path", fl.Path())
	}()

	return body()
}

func (c *Coordinator) sleepJitter(ctx context.Context) error {
	d := c.jitter(c.maxJitter)
	if d <= 0 {
		return ctx.Err()
	}

	c.logger.Debug("jitter before lock", "sleep_ms", d.Milliseconds())
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Coordinator) acquire(ctx context.Context, fl *FileLock) error {
	var err error
	if c.lockTimeout > 0 {
		lockCtx, cancel := context.WithTimeout(ctx, c.lockTimeout)
		defer cancel()
		err = fl.LockContext(lockCtx)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = errors.ErrTimeout
		}
	} else {
		err = fl.LockContext(ctx)
	}

	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	c.logger.Error("failed to acquire lock", "path", fl.Path(), "error", err.Error())
	return errors.NewLockError("acquire", err).WithPath(fl.Path())
}
