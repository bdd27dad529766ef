package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/sweeper/internal/claim"
	"github.com/Iron-Ham/sweeper/internal/printer"
	"github.com/Iron-Ham/sweeper/internal/trial"
)

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim the next unclaimed trial of a sweep",
	Long: `Claim the next unclaimed trial of a sweep for a run ID.

The claimed trial is printed on stdout as a single JSON object holding its
parameters, its run_id and "done": "running". Nothing is printed on stdout
when every trial is already claimed.

Pass the same run ID to 'sweeper done' once the trial has finished.`,
	Args: cobra.NoArgs,
	RunE: runClaim,
}

var claimRunID string

func init() {
	rootCmd.AddCommand(claimCmd)
	claimCmd.Flags().StringVar(&claimRunID, "run-id", "", "run ID recorded as the trial's owner (default: a new UUID)")
}

func runClaim(cmd *cobra.Command, args []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	s, err := env.openSweep(cmd)
	if err != nil {
		return err
	}

	runID := claimRunID
	if runID == "" {
		runID = env.cfg.Worker.RunIDPrefix + uuid.NewString()
	}

	protocol := env.protocol()
	res, err := protocol.Run(cmd.Context(), s.Dir, runID, claim.ModeClaimNext)
	// An upgraded legacy record is left unclaimed; claim again to own one.
	for err == nil && res.Outcome == claim.OutcomeUpgraded {
		res, err = protocol.Run(cmd.Context(), s.Dir, runID, claim.ModeClaimNext)
	}
	if err != nil {
		return err
	}

	if res.Trial == nil {
		printer.Warning(cmd.ErrOrStderr(), "No trial available in sweep %s (%s)\n", s.ID, res.Outcome)
		return nil
	}
	return printTrial(cmd, *res.Trial)
}

// printTrial writes the flat record of t as one JSON line on stdout.
func printTrial(cmd *cobra.Command, t trial.Trial) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode trial: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
