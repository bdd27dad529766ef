package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/sweeper/internal/claim"
	sweeperrors "github.com/Iron-Ham/sweeper/internal/errors"
	"github.com/Iron-Ham/sweeper/internal/filelock"
	"github.com/Iron-Ham/sweeper/internal/logging"
	"github.com/Iron-Ham/sweeper/internal/testutil"
	"github.com/Iron-Ham/sweeper/internal/trial"
	"github.com/Iron-Ham/sweeper/internal/trialstore"
)

func counterIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("r%d", n.Add(1))
	}
}

func TestRun_CompletesEveryTrial(t *testing.T) {
	s := testutil.NewSweep(t, 1, 2, 3)

	var seen []int64
	exec := ExecutorFunc(func(_ context.Context, job Job) error {
		if job.SweepID != s.ID || job.SweepDir != s.Dir {
			t.Errorf("job sweep = %s %s", job.SweepID, job.SweepDir)
		}
		seen = append(seen, job.Params["x"].(int64))
		return nil
	})

	r := NewRunner(s.ID, s.Dir, exec, WithProtocol(testutil.FastProtocol()), WithRunIDFunc(counterIDs()))
	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !slices.Equal(seen, []int64{1, 2, 3}) {
		t.Errorf("executed %v, want [1 2 3]", seen)
	}
	if sum.Claimed != 3 || sum.Completed != 3 || sum.Failed != 0 || sum.Stop != claim.OutcomeExhausted {
		t.Errorf("summary = %+v", sum)
	}
	for i, st := range testutil.States(t, s) {
		if st != trial.StateDone {
			t.Errorf("trial %d = %s, want done", i, st)
		}
	}

	trials, _ := s.Trials()
	for i, tr := range trials {
		if want := fmt.Sprintf("r%d", i+1); tr.RunID != want {
			t.Errorf("trial %d run_id = %q, want %q", i, tr.RunID, want)
		}
	}
}

func TestRun_FailureLeavesTrialRunning(t *testing.T) {
	s := testutil.NewSweep(t, 1, 2, 3)
	exec := ExecutorFunc(func(_ context.Context, job Job) error {
		if job.Params["x"] == int64(2) {
			return errors.New("boom")
		}
		return nil
	})

	r := NewRunner(s.ID, s.Dir, exec, WithProtocol(testutil.FastProtocol()))
	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Completed != 2 || sum.Failed != 1 {
		t.Errorf("summary = %+v", sum)
	}
	want := []trial.State{trial.StateDone, trial.StateRunning, trial.StateDone}
	if got := testutil.States(t, s); !slices.Equal(got, want) {
		t.Errorf("states = %v, want %v", got, want)
	}
}

func TestRun_StopOnFailure(t *testing.T) {
	s := testutil.NewSweep(t, 1, 2, 3)
	exec := ExecutorFunc(func(context.Context, Job) error {
		return errors.New("boom")
	})

	r := NewRunner(s.ID, s.Dir, exec, WithProtocol(testutil.FastProtocol()), WithStopOnFailure(true))
	sum, err := r.Run(context.Background())
	var sweepErr *sweeperrors.SweepError
	if !errors.As(err, &sweepErr) {
		t.Fatalf("err = %v, want *SweepError", err)
	}
	if sweepErr.SweepID != s.ID || sweepErr.RunID == "" {
		t.Errorf("error context = %+v", sweepErr)
	}
	if sum.Claimed != 1 || sum.Failed != 1 {
		t.Errorf("summary = %+v", sum)
	}
	want := []trial.State{trial.StateRunning, trial.StateUnclaimed, trial.StateUnclaimed}
	if got := testutil.States(t, s); !slices.Equal(got, want) {
		t.Errorf("states = %v, want %v", got, want)
	}
}

func TestRun_MaxTrials(t *testing.T) {
	s := testutil.NewSweep(t, 1, 2, 3)
	exec := ExecutorFunc(func(context.Context, Job) error { return nil })

	r := NewRunner(s.ID, s.Dir, exec, WithProtocol(testutil.FastProtocol()), WithMaxTrials(2))
	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Completed != 2 {
		t.Errorf("completed = %d, want 2", sum.Completed)
	}
	want := []trial.State{trial.StateDone, trial.StateDone, trial.StateUnclaimed}
	if got := testutil.States(t, s); !slices.Equal(got, want) {
		t.Errorf("states = %v, want %v", got, want)
	}
}

func TestRun_ClaimsLegacyRecords(t *testing.T) {
	dir := t.TempDir()
	legacy := []trial.Trial{
		{Params: map[string]any{"x": int64(1)}, State: trial.StateUntracked},
		{Params: map[string]any{"x": int64(2)}, State: trial.StateUntracked},
	}
	if err := trialstore.New(dir).WriteAll(legacy); err != nil {
		t.Fatal(err)
	}

	var runs []string
	exec := ExecutorFunc(func(_ context.Context, job Job) error {
		runs = append(runs, job.RunID)
		return nil
	})
	r := NewRunner("legacy", dir, exec, WithProtocol(testutil.FastProtocol()), WithRunIDFunc(counterIDs()))
	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Completed != 2 {
		t.Errorf("completed = %d, want 2", sum.Completed)
	}
	if !slices.Equal(runs, []string{"r1", "r2"}) {
		t.Errorf("runs = %v, want a single run ID per trial", runs)
	}
}

func TestRun_TrialReassignedWhileRunning(t *testing.T) {
	s := testutil.NewSweep(t, 1, 2)
	exec := ExecutorFunc(func(_ context.Context, job Job) error {
		if job.Index != 0 {
			return nil
		}
		// Hand the running trial to another run ID behind the worker's back.
		store := trialstore.New(job.SweepDir)
		res, err := store.ReadAll()
		if err != nil || res.Corrupt {
			t.Fatalf("ReadAll: %v corrupt=%v", err, res.Corrupt)
		}
		res.Trials[job.Index].RunID = "someone-else"
		if err := store.WriteAll(res.Trials); err != nil {
			t.Fatalf("WriteAll: %v", err)
		}
		return nil
	})

	var logs bytes.Buffer
	r := NewRunner(s.ID, s.Dir, exec,
		WithProtocol(testutil.FastProtocol()),
		WithRunIDFunc(counterIDs()),
		WithLogger(logging.NewLoggerWithWriter(&logs, logging.LevelWarn)),
	)
	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(logs.String(), `"msg":"trial no longer owned by this run"`) ||
		!strings.Contains(logs.String(), `"run_id":"r1"`) ||
		!strings.Contains(logs.String(), `"trial":0`) {
		t.Errorf("missing warning for the reassigned trial:\n%s", logs.String())
	}
	if sum.Claimed != 2 || sum.Completed != 1 || sum.Lost != 1 || sum.Failed != 0 {
		t.Errorf("summary = %+v, want claimed 2, completed 1, lost 1", sum)
	}
	want := []trial.State{trial.StateRunning, trial.StateDone}
	if got := testutil.States(t, s); !slices.Equal(got, want) {
		t.Errorf("states = %v, want %v", got, want)
	}
}

func TestSummary_Add(t *testing.T) {
	total := Summary{Claimed: 1, Completed: 1}
	total.add(Summary{Claimed: 3, Completed: 1, Failed: 1, Lost: 1, Stop: claim.OutcomeExhausted})
	want := Summary{Claimed: 4, Completed: 2, Failed: 1, Lost: 1, Stop: claim.OutcomeExhausted}
	if total != want {
		t.Errorf("add = %+v, want %+v", total, want)
	}
}

func TestRun_ContextCanceled(t *testing.T) {
	s := testutil.NewSweep(t, 1, 2)
	ctx, cancel := context.WithCancel(context.Background())
	exec := ExecutorFunc(func(context.Context, Job) error {
		cancel()
		return nil
	})

	r := NewRunner(s.ID, s.Dir, exec, WithProtocol(testutil.FastProtocol()))
	sum, err := r.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if sum.Claimed != 1 {
		t.Errorf("claimed = %d, want 1", sum.Claimed)
	}
}

func TestRun_RunIDPrefix(t *testing.T) {
	s := testutil.NewSweep(t, 1)
	var got string
	exec := ExecutorFunc(func(_ context.Context, job Job) error {
		got = job.RunID
		return nil
	})

	r := NewRunner(s.ID, s.Dir, exec, WithProtocol(testutil.FastProtocol()), WithRunIDPrefix("node7-"))
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "node7-") || len(got) != len("node7-")+36 {
		t.Errorf("run ID = %q, want node7- followed by a UUID", got)
	}
}

func TestRunParallel(t *testing.T) {
	values := make([]any, 20)
	for i := range values {
		values[i] = i
	}
	s := testutil.NewSweep(t, values...)

	var (
		mu   sync.Mutex
		seen = make(map[int64]int)
	)
	exec := ExecutorFunc(func(_ context.Context, job Job) error {
		time.Sleep(time.Millisecond)
		mu.Lock()
		seen[job.Params["x"].(int64)]++
		mu.Unlock()
		return nil
	})

	protocol := claim.New(claim.WithCoordinator(filelock.NewCoordinator(filelock.WithMaxJitter(time.Millisecond))))
	r := NewRunner(s.ID, s.Dir, exec, WithProtocol(protocol))
	sum, err := r.RunParallel(context.Background(), 4)
	if err != nil {
		t.Fatalf("RunParallel: %v", err)
	}
	if sum.Completed != 20 {
		t.Errorf("completed = %d, want 20", sum.Completed)
	}
	for x := int64(0); x < 20; x++ {
		if seen[x] != 1 {
			t.Errorf("trial %d executed %d times, want 1", x, seen[x])
		}
	}
}

func TestRunParallel_InvalidN(t *testing.T) {
	r := NewRunner("s", t.TempDir(), ExecutorFunc(func(context.Context, Job) error { return nil }))
	if _, err := r.RunParallel(context.Background(), 0); !errors.Is(err, sweeperrors.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestCommandExecutor_Env(t *testing.T) {
	testutil.SkipIfNoShell(t)
	out := filepath.Join(t.TempDir(), "env.txt")
	exec, err := NewCommandExecutor([]string{"sh", "-c",
		`printf '%s|%s|%s|%s|%s' "$SWEEP_ID" "$SWEEP_RUN_ID" "$SWEEP_PARAM_LR" "$SWEEP_PARAM_MODEL_NAME" "$SWEEP_PARAMS" > "$OUT"`})
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("OUT", out)

	job := Job{
		SweepID: "abc12345",
		RunID:   "run-1",
		Params:  map[string]any{"lr": 0.1, "model-name": "resnet"},
	}
	if err := exec.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	want := `abc12345|run-1|0.1|resnet|{"lr":0.1,"model-name":"resnet"}`
	if string(data) != want {
		t.Errorf("env = %q, want %q", data, want)
	}
}

func TestCommandExecutor_Failure(t *testing.T) {
	testutil.SkipIfNoShell(t)
	exec, err := NewCommandExecutor([]string{"sh", "-c", "exit 3"})
	if err != nil {
		t.Fatal(err)
	}
	if err := exec.Execute(context.Background(), Job{}); err == nil {
		t.Error("expected error for non-zero exit")
	}

	if _, err := NewCommandExecutor(nil); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestEnvName(t *testing.T) {
	tests := map[string]string{
		"lr":         "LR",
		"model-name": "MODEL_NAME",
		"a.b":        "A_B",
		"Mixed_9":    "MIXED_9",
	}
	for in, want := range tests {
		if got := envName(in); got != want {
			t.Errorf("envName(%q) = %q, want %q", in, got, want)
		}
	}
}
