// Package trial defines one parameter assignment of a sweep together with
// its claim state, and the flat record form both on-disk encodings share.
//
// A record is a JSON-like object holding every parameter plus two protocol
// keys, "run_id" and "done". The "done" key is false for an unclaimed trial,
// the string "running" for a claimed one and true once completed. Records
// written before the protocol keys existed carry neither; they decode as
// [StateUntracked] and are upgraded on first touch.
package trial

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
)

// Protocol keys stored alongside the parameters of every record.
const (
	KeyRunID = "run_id"
	KeyDone  = "done"
)

// RunningMarker is the value of the done key while a trial is claimed.
const RunningMarker = "running"

// ErrInvalidTransition is returned when a state change would move a trial
// backwards or skip a required step.
var ErrInvalidTransition = errors.New("invalid trial state transition")

// State is the claim state of a trial.
type State int

const (
	// StateUntracked marks a record lacking the protocol keys.
	StateUntracked State = iota
	// StateUnclaimed marks a trial nobody has claimed yet.
	StateUnclaimed
	// StateRunning marks a trial claimed by a worker and in progress.
	StateRunning
	// StateDone marks a completed trial. It is terminal.
	StateDone
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateUntracked:
		return "untracked"
	case StateUnclaimed:
		return "unclaimed"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// IsClaimable reports whether a claim-next scan may take a trial in this state.
func (s State) IsClaimable() bool {
	return s == StateUntracked || s == StateUnclaimed
}

// Trial is one combination of axis values plus its claim state.
type Trial struct {
	// Params maps axis name to the value chosen for this trial.
	Params map[string]any

	// RunID identifies the worker that owns or completed the trial.
	// Empty until first claimed.
	RunID string

	// State is the claim state.
	State State
}

// New returns an unclaimed trial for the given parameters.
func New(params map[string]any) Trial {
	return Trial{Params: NormalizeParams(params), State: StateUnclaimed}
}

// Clone returns a deep copy of the trial's parameters and state.
func (t Trial) Clone() Trial {
	cp := t
	if t.Params != nil {
		cp.Params = make(map[string]any, len(t.Params))
		for k, v := range t.Params {
			cp.Params[k] = cloneValue(v)
		}
	}
	return cp
}

// Upgrade initializes the protocol fields of an untracked record, recording
// runID as its owner and leaving it unclaimed.
func (t *Trial) Upgrade(runID string) error {
	if t.State != StateUntracked {
		return fmt.Errorf("%w: upgrade from %s", ErrInvalidTransition, t.State)
	}
	t.RunID = runID
	t.State = StateUnclaimed
	return nil
}

// Claim marks an unclaimed trial as running for runID.
func (t *Trial) Claim(runID string) error {
	if t.State != StateUnclaimed {
		return fmt.Errorf("%w: claim from %s", ErrInvalidTransition, t.State)
	}
	t.RunID = runID
	t.State = StateRunning
	return nil
}

// Complete marks a claimed trial as done. Completing a done trial is a no-op.
func (t *Trial) Complete() error {
	if t.State != StateRunning && t.State != StateDone {
		return fmt.Errorf("%w: complete from %s", ErrInvalidTransition, t.State)
	}
	t.State = StateDone
	return nil
}

// Record returns the flat record form of the trial.
func (t Trial) Record() map[string]any {
	rec := make(map[string]any, len(t.Params)+2)
	maps.Copy(rec, t.Params)

	switch t.State {
	case StateUntracked:
		if t.RunID != "" {
			rec[KeyRunID] = t.RunID
		}
	case StateUnclaimed:
		rec[KeyRunID] = t.RunID
		rec[KeyDone] = false
	case StateRunning:
		rec[KeyRunID] = t.RunID
		rec[KeyDone] = RunningMarker
	case StateDone:
		rec[KeyRunID] = t.RunID
		rec[KeyDone] = true
	}
	return rec
}

// FromRecord decodes a flat record. A record missing either protocol key is
// untracked. An unrecognized done value is an error.
func FromRecord(rec map[string]any) (Trial, error) {
	t := Trial{Params: make(map[string]any, len(rec))}
	for k, v := range rec {
		if k == KeyRunID || k == KeyDone {
			continue
		}
		t.Params[k] = normalizeValue(v)
	}

	runID, hasRunID := rec[KeyRunID]
	if hasRunID {
		s, ok := runID.(string)
		if !ok {
			return Trial{}, fmt.Errorf("run_id must be a string, got %T", runID)
		}
		t.RunID = s
	}

	done, hasDone := rec[KeyDone]
	if !hasRunID || !hasDone {
		t.State = StateUntracked
		return t, nil
	}

	switch v := done.(type) {
	case nil:
		t.State = StateUnclaimed
	case bool:
		if v {
			t.State = StateDone
		} else {
			t.State = StateUnclaimed
		}
	case string:
		if v != RunningMarker {
			return Trial{}, fmt.Errorf("unknown done marker %q", v)
		}
		t.State = StateRunning
	default:
		return Trial{}, fmt.Errorf("done must be a bool or %q, got %T", RunningMarker, done)
	}
	return t, nil
}

// MarshalJSON encodes the trial as its flat record.
func (t Trial) MarshalJSON() ([]byte, error) {
	rec := t.Record()
	for k, v := range rec {
		rec[k] = jsonValue(v)
	}
	return json.Marshal(rec)
}

// UnmarshalJSON decodes a flat record. Numbers are decoded as int64 when
// integral, uint64 when integral and above the int64 range, and float64
// otherwise.
func (t *Trial) UnmarshalJSON(data []byte) error {
	var rec map[string]any
	if err := unmarshalNumbers(data, &rec); err != nil {
		return err
	}
	if rec == nil {
		return errors.New("trial record must be a JSON object")
	}
	decoded, err := FromRecord(rec)
	if err != nil {
		return err
	}
	*t = decoded
	return nil
}

// IsReservedKey reports whether name collides with a protocol key.
func IsReservedKey(name string) bool {
	return name == KeyRunID || name == KeyDone
}
