package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/sweeper/internal/claim"
	"github.com/Iron-Ham/sweeper/internal/printer"
	"github.com/Iron-Ham/sweeper/internal/worker"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command> [args...]",
	Short: "Claim and run trials until the sweep is exhausted",
	Long: `Repeatedly claim a trial, run a command for it and mark it done, until
no unclaimed trial is left.

The command sees the trial through its environment:
  SWEEP_ID          the sweep ID
  SWEEP_DIR         the sweep directory
  SWEEP_RUN_ID      the run ID owning the trial
  SWEEP_PARAMS      the parameters as a JSON object
  SWEEP_PARAM_<N>   each parameter, name upper-cased

A trial whose command fails stays running and is not retried. Start the
same command on as many hosts as you like; the lock keeps them apart.`,
	Example: `  sweeper run --parallel 4 -- python train.py`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntP("parallel", "p", 1, "number of trials to run at once")
	_ = viper.BindPFlag("worker.parallel", runCmd.Flags().Lookup("parallel"))

	runCmd.Flags().Bool("stop-on-failure", false, "stop at the first failed trial")
	_ = viper.BindPFlag("worker.stop_on_failure", runCmd.Flags().Lookup("stop-on-failure"))

	runCmd.Flags().Int("max-trials", 0, "stop each worker after this many trials (0 means no limit)")
	_ = viper.BindPFlag("worker.max_trials", runCmd.Flags().Lookup("max-trials"))

	runCmd.Flags().String("run-id-prefix", "", "prefix for generated run IDs, e.g. the host name")
	_ = viper.BindPFlag("worker.run_id_prefix", runCmd.Flags().Lookup("run-id-prefix"))
}

func runRun(cmd *cobra.Command, args []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	s, err := env.openSweep(cmd)
	if err != nil {
		return err
	}

	exec, err := worker.NewCommandExecutor(args)
	if err != nil {
		return err
	}
	exec.Stdout = cmd.OutOrStdout()
	exec.Stderr = cmd.ErrOrStderr()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wcfg := env.cfg.Worker
	runner := worker.NewRunner(s.ID, s.Dir, exec,
		worker.WithProtocol(env.protocol()),
		worker.WithLogger(env.logger),
		worker.WithRunIDPrefix(wcfg.RunIDPrefix),
		worker.WithStopOnFailure(wcfg.StopOnFailure),
		worker.WithMaxTrials(wcfg.MaxTrials),
	)

	printer.Step(cmd.ErrOrStderr(), "Running sweep %s with %d worker(s)\n", s.ID, wcfg.Parallel)
	sum, err := runner.RunParallel(ctx, wcfg.Parallel)

	errOut := cmd.ErrOrStderr()
	fmt.Fprintf(errOut, "Claimed: %d  Completed: %d  Failed: %d\n", sum.Claimed, sum.Completed, sum.Failed)
	if err != nil {
		return err
	}
	if sum.Lost > 0 {
		printer.Warning(errOut, "%d trial(s) finished after their record was reassigned; not marked done\n", sum.Lost)
	}
	if sum.Failed > 0 {
		printer.Warning(errOut, "%d trial(s) failed and remain running\n", sum.Failed)
		return fmt.Errorf("%d trial(s) failed", sum.Failed)
	}
	switch sum.Stop {
	case claim.OutcomeExhausted, claim.OutcomeEmpty:
		printer.Success(errOut, "No trials left to claim\n")
	case claim.OutcomeUnreadable:
		printer.Warning(errOut, "Trial list could not be read; stopped\n")
	default:
		printer.Success(errOut, "Stopped after the trial limit\n")
	}
	return nil
}
