package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/Iron-Ham/sweeper/internal/trial"
)

// Environment variables set for every trial command.
const (
	EnvSweepID     = "SWEEP_ID"
	EnvSweepDir    = "SWEEP_DIR"
	EnvRunID       = "SWEEP_RUN_ID"
	EnvParams      = "SWEEP_PARAMS"
	EnvParamPrefix = "SWEEP_PARAM_"
)

// Job is one claimed trial handed to an Executor.
type Job struct {
	SweepID  string
	SweepDir string
	RunID    string
	Index    int
	Params   map[string]any
}

// Executor runs one trial. It is called outside the sweep lock. A returned
// error leaves the trial running.
type Executor interface {
	Execute(ctx context.Context, job Job) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, job Job) error

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// CommandExecutor runs an external command per trial. The trial is passed
// through the environment: SWEEP_PARAMS holds the parameters as a JSON
// object and each parameter is also exported as SWEEP_PARAM_<NAME>.
type CommandExecutor struct {
	Name   string
	Args   []string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

// NewCommandExecutor returns an executor running argv[0] with argv[1:].
func NewCommandExecutor(argv []string) (*CommandExecutor, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, fmt.Errorf("command is required")
	}
	return &CommandExecutor{
		Name:   argv[0],
		Args:   argv[1:],
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}, nil
}

// Execute runs the command and waits for it to exit.
func (e *CommandExecutor) Execute(ctx context.Context, job Job) error {
	env, err := jobEnv(job)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, e.Name, e.Args...)
	cmd.Dir = e.Dir
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("trial command %s failed: %w", e.Name, err)
	}
	return nil
}

// jobEnv returns the environment entries describing job, sorted by key.
func jobEnv(job Job) ([]string, error) {
	params, err := json.Marshal(trial.Trial{Params: job.Params, State: trial.StateUntracked})
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	env := []string{
		EnvSweepID + "=" + job.SweepID,
		EnvSweepDir + "=" + job.SweepDir,
		EnvRunID + "=" + job.RunID,
		EnvParams + "=" + string(params),
	}

	keys := make([]string, 0, len(job.Params))
	for k := range job.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, EnvParamPrefix+envName(k)+"="+trial.FormatValue(job.Params[k]))
	}
	return env, nil
}

// envName upper-cases name and replaces characters that are not valid in
// environment variable names with underscores.
func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
