// Package testutil provides testing utilities for sweeper tests.
package testutil

import (
	"os/exec"
	"testing"

	"github.com/Iron-Ham/sweeper/internal/claim"
	"github.com/Iron-Ham/sweeper/internal/filelock"
	"github.com/Iron-Ham/sweeper/internal/sweep"
	"github.com/Iron-Ham/sweeper/internal/trial"
)

// NewSweep creates a sweep over a single axis "x" in a temporary root.
// The root is automatically cleaned up when the test completes.
func NewSweep(t *testing.T, values ...any) *sweep.Sweep {
	t.Helper()
	return NewSweepWithAxes(t, sweep.Axes{{Name: "x", Values: values}})
}

// NewSweepWithAxes creates a sweep over axes in a temporary root.
func NewSweepWithAxes(t *testing.T, axes sweep.Axes) *sweep.Sweep {
	t.Helper()
	s, err := sweep.Create(t.TempDir(), axes)
	if err != nil {
		t.Fatalf("failed to create sweep: %v", err)
	}
	return s
}

// FastProtocol returns a claim protocol without the pre-lock jitter.
func FastProtocol() *claim.Protocol {
	return claim.New(claim.WithCoordinator(filelock.NewCoordinator(filelock.WithMaxJitter(0))))
}

// States returns the state of every trial of s in order.
func States(t *testing.T, s *sweep.Sweep) []trial.State {
	t.Helper()
	trials, err := s.Trials()
	if err != nil {
		t.Fatalf("failed to read trials: %v", err)
	}
	out := make([]trial.State, len(trials))
	for i, tr := range trials {
		out[i] = tr.State
	}
	return out
}

// SkipIfNoShell skips the test if sh is not available.
func SkipIfNoShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}
