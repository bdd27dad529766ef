package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Iron-Ham/sweeper/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify sweeper configuration",
	Long: `View or modify sweeper configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  sweeper config set claim.max_jitter 2s
  sweeper config set worker.parallel 4

Valid keys:
  sweep.root               - Directory holding sweeps/ and latest
  claim.max_jitter         - Upper bound of the random sleep before locking
  claim.max_read_attempts  - Re-reads of an undecodable trial list
  claim.read_backoff       - Pause between those re-reads
  claim.lock_timeout       - Give up waiting for the lock after this long (0 waits forever)
  worker.parallel          - Trials run at once by 'sweeper run'
  worker.run_id_prefix     - Prefix for generated run IDs
  worker.stop_on_failure   - Stop at the first failed trial (true/false)
  worker.max_trials        - Trials per worker before stopping (0 means no limit)
  watch.debounce           - Quiet period before 'sweeper watch' reloads
  logging.level            - debug, info, warn or error
  logging.dir              - Directory for sweeper.log (empty logs to stderr)`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/sweeper/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintln(out)

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Config file: (none - using defaults)\n")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "sweep:")
	fmt.Fprintf(out, "  root: %s\n", cfg.Sweep.Root)

	fmt.Fprintln(out, "claim:")
	fmt.Fprintf(out, "  max_jitter: %s\n", cfg.Claim.MaxJitter)
	fmt.Fprintf(out, "  max_read_attempts: %d\n", cfg.Claim.MaxReadAttempts)
	fmt.Fprintf(out, "  read_backoff: %s\n", cfg.Claim.ReadBackoff)
	fmt.Fprintf(out, "  lock_timeout: %s\n", cfg.Claim.LockTimeout)

	fmt.Fprintln(out, "worker:")
	fmt.Fprintf(out, "  parallel: %d\n", cfg.Worker.Parallel)
	fmt.Fprintf(out, "  run_id_prefix: %q\n", cfg.Worker.RunIDPrefix)
	fmt.Fprintf(out, "  stop_on_failure: %v\n", cfg.Worker.StopOnFailure)
	fmt.Fprintf(out, "  max_trials: %d\n", cfg.Worker.MaxTrials)

	fmt.Fprintln(out, "watch:")
	fmt.Fprintf(out, "  debounce: %s\n", cfg.Watch.Debounce)

	fmt.Fprintln(out, "logging:")
	fmt.Fprintf(out, "  level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(out, "  dir: %q\n", cfg.Logging.Dir)

	return nil
}

// configKeyTypes lists the keys config set accepts and how to parse them.
var configKeyTypes = map[string]string{
	"sweep.root":              "string",
	"claim.max_jitter":        "duration",
	"claim.max_read_attempts": "int",
	"claim.read_backoff":      "duration",
	"claim.lock_timeout":      "duration",
	"worker.parallel":         "int",
	"worker.run_id_prefix":    "string",
	"worker.stop_on_failure":  "bool",
	"worker.max_trials":       "int",
	"watch.debounce":          "duration",
	"logging.level":           "string",
	"logging.dir":             "string",
}

func parseConfigValue(key, value string) (any, error) {
	keyType, ok := configKeyTypes[key]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key: %s\nRun 'sweeper config set --help' to see valid keys", key)
	}

	switch keyType {
	case "bool":
		if value != "true" && value != "false" {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return value == "true", nil
	case "int":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		return n, nil
	case "duration":
		// Stored as the string form so the file stays readable.
		if _, err := time.ParseDuration(value); err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected a duration such as 500ms or 2s", key)
		}
		return value, nil
	default:
		return value, nil
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	typedValue, err := parseConfigValue(key, args[1])
	if err != nil {
		return err
	}

	// Validate the resulting configuration before writing it
	viper.Set(key, typedValue)
	if _, err := config.Load(); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	// Ensure config directory exists
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := config.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", configFile)

	return nil
}

const defaultConfigContent = `# Sweeper Configuration

# Where sweeps live
sweep:
  # Directory holding sweeps/<id>/ and the latest pointer
  root: .

# Claim protocol settings
claim:
  # Upper bound of the random sleep before each lock attempt. Spreads out
  # workers started at the same moment.
  max_jitter: 10s
  # Re-reads of a trial list that fails to decode before giving up
  max_read_attempts: 10000
  # Pause between those re-reads
  read_backoff: 0s
  # Give up waiting for the lock after this long (0 waits forever)
  lock_timeout: 0s

# 'sweeper run' settings
worker:
  # Trials run at once by one process
  parallel: 1
  # Prefix for generated run IDs, e.g. the host name
  run_id_prefix: ""
  # Stop at the first failed trial
  stop_on_failure: false
  # Trials per worker before stopping (0 means no limit)
  max_trials: 0

# 'sweeper watch' settings
watch:
  # Quiet period before reloading after a change
  debounce: 50ms

logging:
  # debug, info, warn or error
  level: info
  # Directory for sweeper.log (empty logs to stderr)
  dir: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'sweeper config set' to modify values", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	fmt.Fprintln(cmd.OutOrStdout(), "Edit this file to customize sweeper's behavior.")

	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintf(out, "  2. $HOME/.config/sweeper/config.yaml\n")
	fmt.Fprintln(out, "\nEnvironment variables: SWEEPER_* (e.g., SWEEPER_CLAIM_MAX_JITTER)")

	return nil
}
