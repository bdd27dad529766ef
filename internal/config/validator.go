package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "claim.max_jitter")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// runIDPrefixRegex limits prefixes to characters that are safe in file
// names and environment values
var runIDPrefixRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]*$`)

const (
	maxJitter       = time.Hour
	maxParallel     = 256
	maxPathLength   = 4096
	maxPrefixLength = 64
)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateSweep()...)
	errors = append(errors, c.validateClaim()...)
	errors = append(errors, c.validateWorker()...)
	errors = append(errors, c.validateWatch()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateSweep() []ValidationError {
	return validatePath("sweep.root", c.Sweep.Root)
}

func (c *Config) validateClaim() []ValidationError {
	var errors []ValidationError

	if c.Claim.MaxJitter < 0 {
		errors = append(errors, ValidationError{
			Field:   "claim.max_jitter",
			Value:   c.Claim.MaxJitter,
			Message: "must be non-negative",
		})
	} else if c.Claim.MaxJitter > maxJitter {
		errors = append(errors, ValidationError{
			Field:   "claim.max_jitter",
			Value:   c.Claim.MaxJitter,
			Message: fmt.Sprintf("exceeds maximum of %s", maxJitter),
		})
	}

	if c.Claim.MaxReadAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "claim.max_read_attempts",
			Value:   c.Claim.MaxReadAttempts,
			Message: "must be at least 1",
		})
	}

	if c.Claim.ReadBackoff < 0 {
		errors = append(errors, ValidationError{
			Field:   "claim.read_backoff",
			Value:   c.Claim.ReadBackoff,
			Message: "must be non-negative",
		})
	}

	if c.Claim.LockTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "claim.lock_timeout",
			Value:   c.Claim.LockTimeout,
			Message: "must be non-negative (0 waits forever)",
		})
	}

	return errors
}

func (c *Config) validateWorker() []ValidationError {
	var errors []ValidationError

	if c.Worker.Parallel < 1 || c.Worker.Parallel > maxParallel {
		errors = append(errors, ValidationError{
			Field:   "worker.parallel",
			Value:   c.Worker.Parallel,
			Message: fmt.Sprintf("must be between 1 and %d", maxParallel),
		})
	}

	if len(c.Worker.RunIDPrefix) > maxPrefixLength {
		errors = append(errors, ValidationError{
			Field:   "worker.run_id_prefix",
			Value:   c.Worker.RunIDPrefix,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", maxPrefixLength),
		})
	} else if !runIDPrefixRegex.MatchString(c.Worker.RunIDPrefix) {
		errors = append(errors, ValidationError{
			Field:   "worker.run_id_prefix",
			Value:   c.Worker.RunIDPrefix,
			Message: "may only contain letters, digits, '.', '_' and '-'",
		})
	}

	if c.Worker.MaxTrials < 0 {
		errors = append(errors, ValidationError{
			Field:   "worker.max_trials",
			Value:   c.Worker.MaxTrials,
			Message: "must be non-negative (0 means no limit)",
		})
	}

	return errors
}

func (c *Config) validateWatch() []ValidationError {
	if c.Watch.Debounce <= 0 {
		return []ValidationError{{
			Field:   "watch.debounce",
			Value:   c.Watch.Debounce,
			Message: "must be positive",
		}}
	}
	return nil
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	errors = append(errors, validatePath("logging.dir", c.Logging.Dir)...)

	return errors
}

// validatePath rejects paths no filesystem accepts. Empty is allowed.
func validatePath(field, path string) []ValidationError {
	var errors []ValidationError

	// Check for null bytes which are invalid in paths
	if strings.ContainsRune(path, '\x00') {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   path,
			Message: "path contains invalid null character",
		})
	}

	// Reasonable path length limit (most filesystems have limits around 4096)
	if len(path) > maxPathLength {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   path,
			Message: fmt.Sprintf("path exceeds maximum length of %d characters", maxPathLength),
		})
	}

	return errors
}
