// Package watch reports the progress of a sweep as workers change it.
package watch

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/sweeper/internal/errors"
	"github.com/Iron-Ham/sweeper/internal/logging"
	"github.com/Iron-Ham/sweeper/internal/sweep"
	"github.com/Iron-Ham/sweeper/internal/trialstore"
)

// DefaultDebounce coalesces the burst of events one protocol write causes.
const DefaultDebounce = 50 * time.Millisecond

// Update is one progress snapshot. Err is set when the trial list could not
// be read for a reason other than a torn write.
type Update struct {
	Progress sweep.Progress
	Time     time.Time
	Err      error
}

// Watcher watches a sweep directory and publishes a progress snapshot after
// each change to the trial list. Only the newest snapshot is kept if the
// reader falls behind.
type Watcher struct {
	sweep    *sweep.Sweep
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *logging.Logger

	updates  chan Update
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	started  atomic.Bool

	mu   sync.RWMutex
	last Update
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before the trial list is reloaded.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

// New creates a Watcher for s. Call Start to begin watching.
func New(s *sweep.Sweep, opts ...Option) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(s.Dir); err != nil {
		_ = fw.Close()
		return nil, errors.Wrapf(err, "watch sweep %s", s.ID)
	}

	w := &Watcher{
		sweep:    s,
		watcher:  fw,
		debounce: DefaultDebounce,
		logger:   logging.NopLogger(),
		updates:  make(chan Update, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithSweep(s.ID).WithPhase("watch")
	return w, nil
}

// Start publishes the current progress and begins watching.
func (w *Watcher) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	w.reload()
	go w.watchLoop()
}

// Stop ends watching and closes the Updates channel.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
		if w.started.CompareAndSwap(false, true) {
			close(w.updates)
			close(w.doneCh)
		}
	})
	<-w.doneCh
}

// Updates returns the channel snapshots are published on. It is closed by Stop.
func (w *Watcher) Updates() <-chan Update {
	return w.updates
}

// Latest returns the most recent snapshot.
func (w *Watcher) Latest() Update {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last
}

func (w *Watcher) watchLoop() {
	defer close(w.doneCh)
	defer close(w.updates)

	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C

	for {
		select {
		case <-w.stopCh:
			debounceTimer.Stop()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isTrialList(event) {
				continue
			}
			debounceTimer.Reset(w.debounce)

		case <-debounceTimer.C:
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err.Error())
		}
	}
}

// isTrialList reports whether event touches one of the trial list files.
// Writes land by rename, so creates count as changes.
func isTrialList(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	switch filepath.Base(event.Name) {
	case trialstore.PrimaryFileName, trialstore.JSONLFileName:
		return true
	}
	return false
}

func (w *Watcher) reload() {
	p, err := w.sweep.Progress()
	if err != nil && errors.IsRetryable(err) {
		// A torn read; the next event brings a complete file.
		w.logger.Debug("skipping unreadable trial list")
		return
	}

	u := Update{Progress: p, Time: time.Now(), Err: err}
	w.mu.Lock()
	w.last = u
	w.mu.Unlock()

	select {
	case w.updates <- u:
	default:
		// Replace the unread snapshot.
		select {
		case <-w.updates:
		default:
		}
		w.updates <- u
	}
}
