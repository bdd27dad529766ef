package trialstore

import (
	"errors"
	"io/fs"
	"math"
	"os"
	"reflect"
	"strings"
	"testing"

	sweeperrors "github.com/Iron-Ham/sweeper/internal/errors"
	"github.com/Iron-Ham/sweeper/internal/trial"
)

func makeTrials() []trial.Trial {
	trials := []trial.Trial{
		trial.New(map[string]any{"lr": 0.1, "batch": 32, "sweep_id": "abc12345"}),
		trial.New(map[string]any{"lr": 0.1, "batch": 64, "sweep_id": "abc12345"}),
		trial.New(map[string]any{"lr": 0.01, "batch": 32, "sweep_id": "abc12345"}),
		trial.New(map[string]any{"lr": 0.01, "batch": 64, "sweep_id": "abc12345", "layers": []any{1, 2}}),
	}
	_ = trials[0].Claim("A")
	_ = trials[0].Complete()
	_ = trials[1].Claim("B")
	trials[2] = trial.Trial{Params: trials[2].Params, State: trial.StateUntracked}
	return trials
}

func TestWriteAllReadAll_RoundTrip(t *testing.T) {
	s := New(t.TempDir())
	want := makeTrials()

	if err := s.WriteAll(want); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	res, err := s.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if res.Corrupt {
		t.Fatal("ReadAll reported corrupt after a clean write")
	}
	if !reflect.DeepEqual(res.Trials, want) {
		t.Errorf("ReadAll mismatch:\n got %#v\nwant %#v", res.Trials, want)
	}
}

func TestWriteAll_EncodingsAgree(t *testing.T) {
	s := New(t.TempDir())
	want := makeTrials()

	if err := s.WriteAll(want); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	fromJSONL, err := s.ReadJSONL()
	if err != nil {
		t.Fatalf("ReadJSONL: %v", err)
	}
	res, err := s.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !reflect.DeepEqual(fromJSONL, res.Trials) {
		t.Errorf("encodings disagree:\njsonl %#v\nprimary %#v", fromJSONL, res.Trials)
	}
}

func TestWriteAll_OneLinePerTrial(t *testing.T) {
	s := New(t.TempDir())
	if err := s.WriteAll(makeTrials()); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	data, err := os.ReadFile(s.JSONLPath())
	if err != nil {
		t.Fatalf("read jsonl: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4", len(lines))
	}
	if !strings.Contains(lines[1], `"done":"running"`) {
		t.Errorf("line 2 = %s, want running marker", lines[1])
	}
	if strings.Contains(lines[2], `"done"`) {
		t.Errorf("untracked record should have no done key: %s", lines[2])
	}
}

func TestWriteAll_EmptyList(t *testing.T) {
	s := New(t.TempDir())
	if err := s.WriteAll(nil); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	res, err := s.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if res.Corrupt || len(res.Trials) != 0 {
		t.Errorf("ReadAll = %+v, want empty clean result", res)
	}
}

func TestReadAll_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		data func(valid []byte) []byte
	}{
		{"empty", func([]byte) []byte { return nil }},
		{"truncated", func(valid []byte) []byte { return valid[:len(valid)/2] }},
		{"garbage", func([]byte) []byte { return []byte("not a gob stream") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(t.TempDir())
			if err := s.WriteAll(makeTrials()); err != nil {
				t.Fatalf("WriteAll: %v", err)
			}
			valid, err := os.ReadFile(s.PrimaryPath())
			if err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(s.PrimaryPath(), tt.data(valid), 0644); err != nil {
				t.Fatal(err)
			}

			res, err := s.ReadAll()
			if err != nil {
				t.Fatalf("ReadAll should not error on corrupt data: %v", err)
			}
			if !res.Corrupt {
				t.Error("ReadAll should report corrupt")
			}
			if res.Trials != nil {
				t.Error("corrupt read should return no trials")
			}
		})
	}
}

func TestReadAll_Missing(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.ReadAll()
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("ReadAll err = %v, want fs.ErrNotExist", err)
	}
}

func TestRepair_FromJSONL(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	jsonl := `{"lr":0.1,"batch":32}
{"lr":0.1,"batch":64,"run_id":"A","done":"running"}

{"lr":0.01,"batch":32,"run_id":"","done":false}
`
	if err := os.WriteFile(s.JSONLPath(), []byte(jsonl), 0644); err != nil {
		t.Fatal(err)
	}

	repaired, err := s.Repair()
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	if !repaired {
		t.Fatal("Repair should report a repair")
	}

	res, err := s.ReadAll()
	if err != nil || res.Corrupt {
		t.Fatalf("ReadAll after repair: res=%+v err=%v", res, err)
	}
	if len(res.Trials) != 3 {
		t.Fatalf("got %d trials, want 3", len(res.Trials))
	}
	wantStates := []trial.State{trial.StateUntracked, trial.StateRunning, trial.StateUnclaimed}
	for i, want := range wantStates {
		if res.Trials[i].State != want {
			t.Errorf("trial %d state = %s, want %s", i, res.Trials[i].State, want)
		}
	}
	if res.Trials[0].Params["batch"] != int64(32) {
		t.Errorf("batch = %#v, want int64(32)", res.Trials[0].Params["batch"])
	}

	// A second repair is a no-op.
	repaired, err = s.Repair()
	if err != nil || repaired {
		t.Errorf("second Repair = %v, %v; want false, nil", repaired, err)
	}
}

func TestRepair_NothingToServe(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Repair()
	if !errors.Is(err, sweeperrors.ErrMissingTrials) {
		t.Fatalf("Repair err = %v, want ErrMissingTrials", err)
	}
}

func TestRepair_BadJSONL(t *testing.T) {
	s := New(t.TempDir())
	if err := os.WriteFile(s.JSONLPath(), []byte("{\"lr\":0.1}\n{oops\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := s.Repair()
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("Repair err = %v, want line 2 decode error", err)
	}
	if ok, _ := s.PrimaryExists(); ok {
		t.Error("primary must not be written from an undecodable source")
	}
}

func TestWriteInitial(t *testing.T) {
	s := New(t.TempDir())
	if err := s.WriteInitial(makeTrials()); err != nil {
		t.Fatalf("WriteInitial: %v", err)
	}
	got, err := readJSONL(s.InitialPath())
	if err != nil {
		t.Fatalf("readJSONL: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("got %d trials, want 4", len(got))
	}
}

func TestWriteAll_NoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	if err := s.WriteAll(makeTrials()); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	want := []string{PrimaryFileName, JSONLFileName}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("dir entries = %v, want %v", names, want)
	}
}

func TestWriteAll_UnencodableLeavesFilesUntouched(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"positive infinity", math.Inf(1)},
		{"negative infinity", math.Inf(-1)},
		{"not a number", math.NaN()},
		{"nested infinity", []any{1.0, math.Inf(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name+" over existing list", func(t *testing.T) {
			s := New(t.TempDir())
			if err := s.WriteAll(makeTrials()); err != nil {
				t.Fatal(err)
			}
			primary := readFile(t, s.PrimaryPath())
			lines := readFile(t, s.JSONLPath())

			bad := append(makeTrials(), trial.New(map[string]any{"clip": tt.value}))
			if err := s.WriteAll(bad); err == nil {
				t.Fatal("expected encode error")
			}
			if got := readFile(t, s.PrimaryPath()); string(got) != string(primary) {
				t.Error("primary encoding changed after a failed write")
			}
			if got := readFile(t, s.JSONLPath()); string(got) != string(lines) {
				t.Error("JSON Lines encoding changed after a failed write")
			}
		})

		t.Run(tt.name+" on empty dir", func(t *testing.T) {
			s := New(t.TempDir())
			bad := []trial.Trial{trial.New(map[string]any{"clip": tt.value})}
			if err := s.WriteAll(bad); err == nil {
				t.Fatal("expected encode error")
			}
			if ok, _ := s.PrimaryExists(); ok {
				t.Error("primary encoding written for an unencodable list")
			}
			if _, err := os.Stat(s.JSONLPath()); !errors.Is(err, fs.ErrNotExist) {
				t.Errorf("JSON Lines file stat err = %v, want not exist", err)
			}
		})
	}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
