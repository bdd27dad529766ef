package sweep

import (
	"fmt"
	"io/fs"

	"github.com/Iron-Ham/sweeper/internal/errors"
	"github.com/Iron-Ham/sweeper/internal/trial"
)

// Progress counts the trials of a sweep by claim state.
type Progress struct {
	Total     int
	Untracked int
	Unclaimed int
	Running   int
	Done      int
}

// Summarize counts trials by state.
func Summarize(trials []trial.Trial) Progress {
	p := Progress{Total: len(trials)}
	for _, t := range trials {
		switch t.State {
		case trial.StateUntracked:
			p.Untracked++
		case trial.StateUnclaimed:
			p.Unclaimed++
		case trial.StateRunning:
			p.Running++
		case trial.StateDone:
			p.Done++
		}
	}
	return p
}

// Remaining is the number of trials still available to claim.
func (p Progress) Remaining() int {
	return p.Untracked + p.Unclaimed
}

// Finished reports whether every trial is done.
func (p Progress) Finished() bool {
	return p.Total > 0 && p.Done == p.Total
}

// Fraction is the share of done trials in [0, 1].
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Done) / float64(p.Total)
}

// String formats the counts on one line.
func (p Progress) String() string {
	return fmt.Sprintf("%d/%d done, %d running, %d pending", p.Done, p.Total, p.Running, p.Remaining())
}

// Trials reads the sweep's trial list without locking or repairing it. The
// primary encoding is preferred; when it is missing the human-readable one
// is read instead. A primary that does not decode returns
// errors.ErrStoreUnreadable, which callers may retry.
func (s *Sweep) Trials() ([]trial.Trial, error) {
	store := s.Store()
	res, err := store.ReadAll()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		trials, jerr := store.ReadJSONL()
		if jerr != nil {
			if errors.Is(jerr, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", errors.ErrMissingTrials, s.Dir)
			}
			return nil, jerr
		}
		return trials, nil
	}
	if res.Corrupt {
		return nil, errors.NewSweepError("read trial list", errors.ErrStoreUnreadable).
			WithSweepID(s.ID).WithRetryable(true)
	}
	return res.Trials, nil
}

// Progress summarizes the sweep's current trial list.
func (s *Sweep) Progress() (Progress, error) {
	trials, err := s.Trials()
	if err != nil {
		return Progress{}, err
	}
	return Summarize(trials), nil
}
