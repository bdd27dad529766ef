package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	// Verify default sweep config
	if cfg.Sweep.Root != "." {
		t.Errorf("Sweep.Root = %q, want %q", cfg.Sweep.Root, ".")
	}

	// Verify default claim config
	if cfg.Claim.MaxJitter != 10*time.Second {
		t.Errorf("Claim.MaxJitter = %v, want 10s", cfg.Claim.MaxJitter)
	}
	if cfg.Claim.MaxReadAttempts != 10000 {
		t.Errorf("Claim.MaxReadAttempts = %d, want 10000", cfg.Claim.MaxReadAttempts)
	}
	if cfg.Claim.LockTimeout != 0 {
		t.Errorf("Claim.LockTimeout = %v, want 0", cfg.Claim.LockTimeout)
	}

	// Verify default worker config
	if cfg.Worker.Parallel != 1 {
		t.Errorf("Worker.Parallel = %d, want 1", cfg.Worker.Parallel)
	}
	if cfg.Worker.StopOnFailure {
		t.Error("Worker.StopOnFailure should be false by default")
	}

	if cfg.Watch.Debounce != 50*time.Millisecond {
		t.Errorf("Watch.Debounce = %v, want 50ms", cfg.Watch.Debounce)
	}

	// Verify default logging config
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Logging.Dir != "" {
		t.Errorf("Logging.Dir = %q, want empty (stderr)", cfg.Logging.Dir)
	}
}

func TestSweepConfig_ResolveRoot(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		root string
		want string
	}{
		{"", "."},
		{".", "."},
		{"runs/", "runs"},
		{"/abs/path", "/abs/path"},
		{"~", home},
		{"~/sweeps", filepath.Join(home, "sweeps")},
	}
	for _, tt := range tests {
		t.Run(tt.root, func(t *testing.T) {
			s := SweepConfig{Root: tt.root}
			if got := s.ResolveRoot(); got != tt.want {
				t.Errorf("ResolveRoot() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	// Test with XDG_CONFIG_HOME set
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		result := ConfigDir()
		expected := "/custom/config/sweeper"
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})

	// Test without XDG_CONFIG_HOME
	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		result := ConfigDir()

		// Should be based on home directory
		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, ".config", "sweeper")
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	result := ConfigFile()
	expected := "/custom/config/sweeper/config.yaml"
	if result != expected {
		t.Errorf("ConfigFile() = %q, want %q", result, expected)
	}
}

func TestGet(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	// Set defaults in viper first (normally done by cmd init)
	SetDefaults()

	// Get() should return defaults when no config file exists
	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}
	if cfg.Claim.MaxJitter != 10*time.Second {
		t.Errorf("Get().Claim.MaxJitter = %v, want 10s", cfg.Claim.MaxJitter)
	}
}

func TestLoad_FromFile(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
sweep:
  root: /data/sweeps
claim:
  max_jitter: 250ms
  lock_timeout: 2m
worker:
  parallel: 4
  run_id_prefix: node-7
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sweep.Root != "/data/sweeps" {
		t.Errorf("Sweep.Root = %q", cfg.Sweep.Root)
	}
	if cfg.Claim.MaxJitter != 250*time.Millisecond {
		t.Errorf("Claim.MaxJitter = %v, want 250ms", cfg.Claim.MaxJitter)
	}
	if cfg.Claim.LockTimeout != 2*time.Minute {
		t.Errorf("Claim.LockTimeout = %v, want 2m", cfg.Claim.LockTimeout)
	}
	if cfg.Worker.Parallel != 4 || cfg.Worker.RunIDPrefix != "node-7" {
		t.Errorf("Worker = %+v", cfg.Worker)
	}
	// Unset keys keep their defaults.
	if cfg.Claim.MaxReadAttempts != 10000 {
		t.Errorf("Claim.MaxReadAttempts = %d, want default", cfg.Claim.MaxReadAttempts)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoad_Invalid(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()

	viper.Set("worker.parallel", 0)
	viper.Set("logging.level", "loud")

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("err = %T, want ValidationErrors", err)
	}
	if len(verrs) != 2 {
		t.Errorf("got %d errors, want 2: %v", len(verrs), verrs)
	}
	if !strings.Contains(err.Error(), "worker.parallel") {
		t.Errorf("error should name worker.parallel: %v", err)
	}

	// Get falls back to defaults.
	if cfg := Get(); cfg.Worker.Parallel != 1 {
		t.Errorf("Get().Worker.Parallel = %d, want default 1", cfg.Worker.Parallel)
	}
}
