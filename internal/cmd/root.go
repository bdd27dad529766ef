package cmd

import (
	"strings"

	"github.com/Iron-Ham/sweeper/internal/config"
	"github.com/Iron-Ham/sweeper/internal/sweep"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "sweeper",
	Short: "File-locked parameter sweeps for independent workers",
	Long: `Sweeper runs a hyperparameter sweep across many independent worker
processes that share nothing but a directory. A sweep is the cartesian
product of a few parameter axes; each worker claims the next unclaimed
combination under an advisory file lock, runs it, and marks it done.

Workers can run on any host that sees the sweep directory through a
filesystem with working flock(2) semantics.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/sweeper/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.PersistentFlags().String("root", "", `sweep root directory holding sweeps/ and latest (default ".")`)
	_ = viper.BindPFlag("sweep.root", rootCmd.PersistentFlags().Lookup("root"))

	rootCmd.PersistentFlags().StringP("sweep", "s", sweep.LatestRef, "sweep ID, or \"latest\" for the most recently created sweep")

	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/sweeper")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SWEEPER")
	// Replace dots with underscores for nested keys in env vars
	// e.g., SWEEPER_CLAIM_MAX_JITTER for claim.max_jitter
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
