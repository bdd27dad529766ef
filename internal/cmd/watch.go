package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/sweeper/internal/tui"
	"github.com/Iron-Ham/sweeper/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the progress of a sweep live",
	Long: `Follow the progress of a sweep as workers claim and complete trials.

On a terminal a live progress view is shown; press q to quit. Otherwise one
line is printed per change.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var watchExitWhenDone bool

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchExitWhenDone, "exit-when-done", false, "exit once every trial is done")

	watchCmd.Flags().Duration("debounce", 0, "quiet period before reloading after a change (default 50ms)")
	_ = viper.BindPFlag("watch.debounce", watchCmd.Flags().Lookup("debounce"))
}

func runWatch(cmd *cobra.Command, args []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	s, err := env.openSweep(cmd)
	if err != nil {
		return err
	}

	w, err := watch.New(s,
		watch.WithDebounce(env.cfg.Watch.Debounce),
		watch.WithLogger(env.logger),
	)
	if err != nil {
		return fmt.Errorf("failed to watch sweep: %w", err)
	}
	w.Start()
	defer w.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return tui.Run(ctx, s.ID, w.Updates(), cmd.OutOrStdout(), watchExitWhenDone)
}
