package cmd

import (
	"fmt"

	"github.com/Iron-Ham/sweeper/internal/printer"
	"github.com/Iron-Ham/sweeper/internal/sweep"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create <axes.yaml>",
	Short: "Create a sweep from an axes file",
	Long: `Create a sweep from a YAML file mapping axis names to value lists.

Every combination of the axis values becomes one unclaimed trial; the
last axis varies fastest. Axis order follows the file. A scalar value is
treated as a one-element list.

  lr: [0.1, 0.01]
  batch: [32, 64]

The new sweep ID is printed on stdout and recorded as the latest sweep.`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

var (
	createExclude []string
	createID      string
)

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().StringSliceVar(&createExclude, "exclude", nil, "axes to record but leave out of the trial parameters")
	createCmd.Flags().StringVar(&createID, "id", "", "use this sweep ID instead of a generated one")
}

func runCreate(cmd *cobra.Command, args []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	axes, err := sweep.LoadAxesFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to load axes: %w", err)
	}

	opts := []sweep.CreateOption{sweep.WithExcluded(createExclude...)}
	if createID != "" {
		opts = append(opts, sweep.WithID(createID))
	}

	s, err := sweep.Create(env.root, axes, opts...)
	if err != nil {
		return err
	}
	env.logger.WithSweep(s.ID).Info("sweep created", "dir", s.Dir, "axes", len(s.Axes))

	p, err := s.Progress()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), s.ID)
	printer.Success(cmd.ErrOrStderr(), "Created sweep %s with %d trials in %s\n", s.ID, p.Total, s.Dir)
	return nil
}
