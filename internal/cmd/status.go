package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/sweeper/internal/sweep"
	"github.com/Iron-Ham/sweeper/internal/trial"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show progress of a sweep",
	Long: `Display how many trials of a sweep are done, running and pending.

With --trials, every trial is listed with its state, owner and parameters.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var (
	statusTrials bool
	statusJSON   bool
)

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusTrials, "trials", false, "list every trial")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print progress as JSON")
}

// statusReport is the --json form of status.
type statusReport struct {
	SweepID   string `json:"sweep_id"`
	Dir       string `json:"dir"`
	Total     int    `json:"total"`
	Done      int    `json:"done"`
	Running   int    `json:"running"`
	Unclaimed int    `json:"unclaimed"`
	Untracked int    `json:"untracked"`
	Trials    []any  `json:"trials,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	s, err := env.openSweep(cmd)
	if err != nil {
		return err
	}

	trials, err := s.Trials()
	if err != nil {
		return err
	}
	p := sweep.Summarize(trials)
	out := cmd.OutOrStdout()

	if statusJSON {
		report := statusReport{
			SweepID:   s.ID,
			Dir:       s.Dir,
			Total:     p.Total,
			Done:      p.Done,
			Running:   p.Running,
			Unclaimed: p.Unclaimed,
			Untracked: p.Untracked,
		}
		if statusTrials {
			for _, t := range trials {
				report.Trials = append(report.Trials, t)
			}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "Sweep: %s\n", s.ID)
	fmt.Fprintf(out, "Dir: %s\n", s.Dir)
	if len(s.Axes) > 0 {
		fmt.Fprintf(out, "Axes: %s\n", strings.Join(s.Axes.Names(), ", "))
	}
	fmt.Fprintf(out, "Progress: %s\n", p)
	if p.Untracked > 0 {
		fmt.Fprintf(out, "Untracked: %d (upgraded on first claim)\n", p.Untracked)
	}

	if statusTrials {
		fmt.Fprintln(out)
		printTrials(out, trials, paramOrder(s, trials), terminalWidth(out))
	}
	return nil
}

// paramOrder lists parameter names in axis order, followed by any names
// only present in the records, sorted.
func paramOrder(s *sweep.Sweep, trials []trial.Trial) []string {
	order := s.Axes.Names()
	seen := make(map[string]bool, len(order))
	for _, name := range order {
		seen[name] = true
	}
	extra := make(map[string]bool)
	for _, t := range trials {
		for name := range t.Params {
			if !seen[name] {
				extra[name] = true
			}
		}
	}
	return append(order, slices.Sorted(maps.Keys(extra))...)
}

// terminalWidth returns the column count of w, or 0 when w is not a terminal.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// printTrials lists one trial per line. Lines are cut to width when it is
// positive.
func printTrials(w io.Writer, trials []trial.Trial, order []string, width int) {
	for i, t := range trials {
		var params []string
		for _, name := range order {
			if name == sweep.IDAxis {
				continue
			}
			if v, ok := t.Params[name]; ok {
				params = append(params, fmt.Sprintf("%s=%s", name, trial.FormatValue(v)))
			}
		}
		owner := t.RunID
		if owner == "" {
			owner = "-"
		}
		line := fmt.Sprintf("[%d] %-9s %-40s %s", i, t.State, owner, strings.Join(params, " "))
		if width > 0 {
			line = ansi.Truncate(line, width, "...")
		}
		fmt.Fprintln(w, line)
	}
}
