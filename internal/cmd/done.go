package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/sweeper/internal/printer"
)

var doneCmd = &cobra.Command{
	Use:   "done <run-id>",
	Short: "Mark the trial claimed under a run ID as done",
	Long: `Mark the trial claimed under a run ID as done.

The completed trial is printed on stdout as a JSON object. Marking an
already completed trial again succeeds without changing it. Nothing is
printed on stdout when no trial carries the run ID.`,
	Args: cobra.ExactArgs(1),
	RunE: runDone,
}

func init() {
	rootCmd.AddCommand(doneCmd)
}

func runDone(cmd *cobra.Command, args []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	s, err := env.openSweep(cmd)
	if err != nil {
		return err
	}

	t, err := env.protocol().MarkDone(cmd.Context(), s.Dir, args[0])
	if err != nil {
		return err
	}
	if t == nil {
		printer.Warning(cmd.ErrOrStderr(), "No trial in sweep %s is claimed by %s\n", s.ID, args[0])
		return nil
	}
	return printTrial(cmd, *t)
}
