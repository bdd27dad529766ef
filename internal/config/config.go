package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete sweeper configuration
type Config struct {
	Sweep   SweepConfig   `mapstructure:"sweep"`
	Claim   ClaimConfig   `mapstructure:"claim"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Watch   WatchConfig   `mapstructure:"watch"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SweepConfig controls where sweeps live
type SweepConfig struct {
	// Root is the directory holding sweeps/<id>/ and the latest pointer.
	// Relative paths resolve against the working directory; ~ expands to the
	// home directory. (default: ".")
	Root string `mapstructure:"root"`
}

// ClaimConfig controls the claim protocol
type ClaimConfig struct {
	// MaxJitter is the upper bound of the random sleep before each lock
	// attempt. It spreads out workers launched at the same moment. (default: 10s)
	MaxJitter time.Duration `mapstructure:"max_jitter"`
	// MaxReadAttempts bounds re-reads of a trial list that fails to decode.
	// (default: 10000)
	MaxReadAttempts int `mapstructure:"max_read_attempts"`
	// ReadBackoff is the pause between those re-reads. (default: 0)
	ReadBackoff time.Duration `mapstructure:"read_backoff"`
	// LockTimeout bounds how long a worker waits for the lock.
	// 0 waits forever. (default: 0)
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

// WorkerConfig controls the run command
type WorkerConfig struct {
	// Parallel is the number of trials run at once by one process. (default: 1)
	Parallel int `mapstructure:"parallel"`
	// RunIDPrefix is prepended to every generated run ID, e.g. a host name.
	RunIDPrefix string `mapstructure:"run_id_prefix"`
	// StopOnFailure stops the worker at the first failed trial instead of
	// moving on. Failed trials stay running either way. (default: false)
	StopOnFailure bool `mapstructure:"stop_on_failure"`
	// MaxTrials stops a worker after this many trials. 0 means no limit.
	MaxTrials int `mapstructure:"max_trials"`
}

// WatchConfig controls the watch command
type WatchConfig struct {
	// Debounce is the quiet period before the trial list is reloaded after
	// a change. (default: 50ms)
	Debounce time.Duration `mapstructure:"debounce"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is the directory for sweeper.log. Empty logs to stderr.
	Dir string `mapstructure:"dir"`
}

// ResolveRoot returns the resolved sweep root.
// If Root is empty, the working directory is used.
// If Root starts with ~, it expands to the user's home directory.
func (s *SweepConfig) ResolveRoot() string {
	path := s.Root
	if path == "" {
		path = "."
	}

	// Expand ~ to home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return filepath.Clean(path)
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Sweep: SweepConfig{
			Root: ".",
		},
		Claim: ClaimConfig{
			MaxJitter:       10 * time.Second,
			MaxReadAttempts: 10000,
			ReadBackoff:     0,
			LockTimeout:     0,
		},
		Worker: WorkerConfig{
			Parallel:      1,
			RunIDPrefix:   "",
			StopOnFailure: false,
			MaxTrials:     0,
		},
		Watch: WatchConfig{
			Debounce: 50 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Sweep defaults
	viper.SetDefault("sweep.root", defaults.Sweep.Root)

	// Claim defaults
	viper.SetDefault("claim.max_jitter", defaults.Claim.MaxJitter)
	viper.SetDefault("claim.max_read_attempts", defaults.Claim.MaxReadAttempts)
	viper.SetDefault("claim.read_backoff", defaults.Claim.ReadBackoff)
	viper.SetDefault("claim.lock_timeout", defaults.Claim.LockTimeout)

	// Worker defaults
	viper.SetDefault("worker.parallel", defaults.Worker.Parallel)
	viper.SetDefault("worker.run_id_prefix", defaults.Worker.RunIDPrefix)
	viper.SetDefault("worker.stop_on_failure", defaults.Worker.StopOnFailure)
	viper.SetDefault("worker.max_trials", defaults.Worker.MaxTrials)

	// Watch defaults
	viper.SetDefault("watch.debounce", defaults.Watch.Debounce)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sweeper")
	}
	// Fall back to ~/.config/sweeper
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sweeper"
	}
	return filepath.Join(home, ".config", "sweeper")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
