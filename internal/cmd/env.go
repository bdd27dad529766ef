package cmd

import (
	"fmt"

	"github.com/Iron-Ham/sweeper/internal/claim"
	"github.com/Iron-Ham/sweeper/internal/config"
	"github.com/Iron-Ham/sweeper/internal/errors"
	"github.com/Iron-Ham/sweeper/internal/filelock"
	"github.com/Iron-Ham/sweeper/internal/logging"
	"github.com/Iron-Ham/sweeper/internal/printer"
	"github.com/Iron-Ham/sweeper/internal/sweep"
	"github.com/spf13/cobra"
)

// cmdEnv bundles what every subcommand needs: validated config, a logger
// and the resolved sweep root.
type cmdEnv struct {
	cfg    *config.Config
	logger *logging.Logger
	root   string
}

func loadEnv() (*cmdEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return &cmdEnv{cfg: cfg, logger: logger, root: cfg.Sweep.ResolveRoot()}, nil
}

func (e *cmdEnv) Close() {
	_ = e.logger.Close()
}

func (e *cmdEnv) protocol() *claim.Protocol {
	coordinator := filelock.NewCoordinator(
		filelock.WithMaxJitter(e.cfg.Claim.MaxJitter),
		filelock.WithLockTimeout(e.cfg.Claim.LockTimeout),
		filelock.WithLogger(e.logger),
	)
	return claim.New(
		claim.WithCoordinator(coordinator),
		claim.WithLogger(e.logger),
		claim.WithMaxReadAttempts(e.cfg.Claim.MaxReadAttempts),
		claim.WithReadBackoff(e.cfg.Claim.ReadBackoff),
	)
}

// openSweep opens the sweep named by the --sweep flag. Lookup failures are
// printed with hints on the command's error stream.
func (e *cmdEnv) openSweep(cmd *cobra.Command) (*sweep.Sweep, error) {
	ref, _ := cmd.Flags().GetString("sweep")
	s, err := sweep.Open(e.root, ref)
	switch {
	case err == nil:
		return s, nil
	case errors.Is(err, errors.ErrNoLatestSweep):
		return nil, printer.Error(cmd.ErrOrStderr(),
			"No sweep found",
			fmt.Sprintf("There is no %s pointer under %s.", sweep.LatestFileName, e.root),
			[]string{
				"Create a sweep with 'sweeper create axes.yaml'",
				"Point --root at the directory holding your sweeps",
			})
	case errors.Is(err, errors.ErrSweepNotFound):
		return nil, printer.Error(cmd.ErrOrStderr(),
			fmt.Sprintf("Sweep %q not found", ref),
			fmt.Sprintf("No directory %s exists.", sweep.Dir(e.root, ref)),
			[]string{
				"Run 'sweeper list' to see available sweeps",
				"Point --root at the directory holding your sweeps",
			})
	default:
		return nil, err
	}
}
