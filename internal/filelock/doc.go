// Package filelock provides cross-process mutual exclusion for a sweep
// directory using advisory flock(2) locks.
//
// Workers that share nothing but a filesystem serialize their
// read-modify-write of a sweep's trial list by locking the same lock file.
// The lock is advisory: it only excludes processes that also take it.
//
// # Basic Usage
//
//	coord := filelock.NewCoordinator(filelock.WithMaxJitter(10 * time.Second))
//
//	err := coord.WithLock(ctx, sweepDir, func() error {
//	    // read, mutate and write the trial list
//	    return nil
//	})
//
// Before acquiring, [Coordinator.WithLock] sleeps for a uniformly random
// duration below the configured jitter so that a herd of workers started at
// the same moment does not queue on the lock all at once.
//
// # Blocking
//
// [FileLock.Lock] blocks until the lock is granted. When the context passed
// to [FileLock.LockContext] can be canceled, the lock is polled with a
// non-blocking attempt instead so that a deadline bounds the wait.
package filelock
