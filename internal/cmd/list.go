package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/sweeper/internal/sweep"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List sweeps under the sweep root",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ids, err := sweep.List(env.root)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(ids) == 0 {
		fmt.Fprintf(out, "No sweeps under %s\n", env.root)
		return nil
	}

	latest, _ := sweep.Latest(env.root)
	for _, id := range ids {
		marker := " "
		if id == latest {
			marker = "*"
		}

		s, err := sweep.Open(env.root, id)
		if err != nil {
			fmt.Fprintf(out, "%s %s  (%v)\n", marker, id, err)
			continue
		}
		p, err := s.Progress()
		if err != nil {
			fmt.Fprintf(out, "%s %s  (%v)\n", marker, id, err)
			continue
		}
		fmt.Fprintf(out, "%s %s  %s\n", marker, id, p)
	}
	return nil
}
