package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   123,
		Message: "must be greater than zero",
	}

	expected := "test.field: must be greater than zero (got: 123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()
	errs := cfg.Validate()
	if len(errs) != 0 {
		t.Errorf("Default config should be valid, got %d errors: %v", len(errs), errs)
	}
}

// hasFieldError reports whether errs contains an error for field.
func hasFieldError(errs []ValidationError, field string) bool {
	for _, err := range errs {
		if err.Field == field {
			return true
		}
	}
	return false
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		field   string
		wantErr bool
	}{
		{"zero jitter", func(c *Config) { c.Claim.MaxJitter = 0 }, "claim.max_jitter", false},
		{"negative jitter", func(c *Config) { c.Claim.MaxJitter = -time.Second }, "claim.max_jitter", true},
		{"huge jitter", func(c *Config) { c.Claim.MaxJitter = 2 * time.Hour }, "claim.max_jitter", true},
		{"one read attempt", func(c *Config) { c.Claim.MaxReadAttempts = 1 }, "claim.max_read_attempts", false},
		{"zero read attempts", func(c *Config) { c.Claim.MaxReadAttempts = 0 }, "claim.max_read_attempts", true},
		{"negative backoff", func(c *Config) { c.Claim.ReadBackoff = -1 }, "claim.read_backoff", true},
		{"lock timeout", func(c *Config) { c.Claim.LockTimeout = time.Minute }, "claim.lock_timeout", false},
		{"negative lock timeout", func(c *Config) { c.Claim.LockTimeout = -time.Minute }, "claim.lock_timeout", true},
		{"parallel 8", func(c *Config) { c.Worker.Parallel = 8 }, "worker.parallel", false},
		{"parallel 0", func(c *Config) { c.Worker.Parallel = 0 }, "worker.parallel", true},
		{"parallel too high", func(c *Config) { c.Worker.Parallel = 1000 }, "worker.parallel", true},
		{"prefix ok", func(c *Config) { c.Worker.RunIDPrefix = "host-1.gpu_0" }, "worker.run_id_prefix", false},
		{"prefix with space", func(c *Config) { c.Worker.RunIDPrefix = "host 1" }, "worker.run_id_prefix", true},
		{"prefix with slash", func(c *Config) { c.Worker.RunIDPrefix = "a/b" }, "worker.run_id_prefix", true},
		{"prefix too long", func(c *Config) { c.Worker.RunIDPrefix = strings.Repeat("a", 65) }, "worker.run_id_prefix", true},
		{"negative max trials", func(c *Config) { c.Worker.MaxTrials = -1 }, "worker.max_trials", true},
		{"zero debounce", func(c *Config) { c.Watch.Debounce = 0 }, "watch.debounce", true},
		{"root with null", func(c *Config) { c.Sweep.Root = "a\x00b" }, "sweep.root", true},
		{"root too long", func(c *Config) { c.Sweep.Root = strings.Repeat("a", 5000) }, "sweep.root", true},
		{"log dir with null", func(c *Config) { c.Logging.Dir = "\x00" }, "logging.dir", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			got := hasFieldError(cfg.Validate(), tt.field)
			if got != tt.wantErr {
				t.Errorf("error for %s = %v, want %v", tt.field, got, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_Logging(t *testing.T) {
	t.Run("valid log levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", ""} {
			cfg := Default()
			cfg.Logging.Level = level
			if hasFieldError(cfg.Validate(), "logging.level") {
				t.Errorf("level %q should be valid", level)
			}
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfg := Default()
		cfg.Logging.Level = "invalid"
		if !hasFieldError(cfg.Validate(), "logging.level") {
			t.Error("expected error for invalid log level")
		}
	})

	t.Run("case sensitive log level", func(t *testing.T) {
		cfg := Default()
		cfg.Logging.Level = "INFO"
		if !hasFieldError(cfg.Validate(), "logging.level") {
			t.Error("expected error for uppercase log level")
		}
	})
}

func TestValidLogLevels(t *testing.T) {
	levels := ValidLogLevels()
	expected := []string{"debug", "info", "warn", "error"}

	if len(levels) != len(expected) {
		t.Fatalf("ValidLogLevels() returned %d levels, want %d", len(levels), len(expected))
	}
	for i, level := range expected {
		if levels[i] != level {
			t.Errorf("ValidLogLevels()[%d] = %q, want %q", i, levels[i], level)
		}
	}
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Claim.MaxReadAttempts = 0
	cfg.Worker.Parallel = -1
	cfg.Logging.Level = "nope"

	errs := cfg.Validate()
	if len(errs) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(errs), errs)
	}
}
