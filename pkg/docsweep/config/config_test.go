package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	return home
}

func TestLoad_Defaults(t *testing.T) {
	isolateHome(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Workers != 0 {
		t.Errorf("Workers = %d, want 0 (auto)", cfg.Workers)
	}
	if cfg.BatchSize != 0 {
		t.Errorf("BatchSize = %d, want 0 (auto)", cfg.BatchSize)
	}
	if cfg.Pattern != DefaultPattern {
		t.Errorf("Pattern = %q, want %q", cfg.Pattern, DefaultPattern)
	}
	if cfg.OutputDir != DefaultOutputDir {
		t.Errorf("OutputDir = %q, want %q", cfg.OutputDir, DefaultOutputDir)
	}
	if cfg.Engine.Command != DefaultEngineCommand {
		t.Errorf("Engine.Command = %q, want %q", cfg.Engine.Command, DefaultEngineCommand)
	}
	if !cfg.Engine.OCR {
		t.Error("Engine.OCR = false, want true")
	}
	if cfg.Pressure.CheckInterval != DefaultPressureInterval {
		t.Errorf("Pressure.CheckInterval = %v, want %v", cfg.Pressure.CheckInterval, DefaultPressureInterval)
	}
	if cfg.Pressure.MaxPercent != DefaultMaxMemoryPercent {
		t.Errorf("Pressure.MaxPercent = %v, want %v", cfg.Pressure.MaxPercent, DefaultMaxMemoryPercent)
	}
	if !cfg.History.Enabled || cfg.History.RetentionDays != DefaultRetentionDays {
		t.Errorf("History = %+v, want enabled with %d days", cfg.History, DefaultRetentionDays)
	}
	if cfg.Ledger.Path != DefaultLedgerPath() {
		t.Errorf("Ledger.Path = %q, want %q", cfg.Ledger.Path, DefaultLedgerPath())
	}
	if cfg.Watch.Settle != DefaultWatchSettle {
		t.Errorf("Watch.Settle = %v, want %v", cfg.Watch.Settle, DefaultWatchSettle)
	}
	if cfg.Logging.Components["queue"] != "warn" {
		t.Errorf("Logging.Components[queue] = %q, want warn", cfg.Logging.Components["queue"])
	}
}

func TestLoad_FromFile(t *testing.T) {
	home := isolateHome(t)
	configDir := filepath.Join(home, ".config", "docsweep")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("creating config dir: %v", err)
	}

	content := `
workers: 6
batch_size: 24
gpu: true
output_dir: ~/converted
pattern: "*.docx"
recursive: true
task_timeout: 90s
min_file_size: 10K
engine:
  command: /opt/bin/convert
  args: ["--quiet"]
  device: cuda
pressure:
  check_interval: 500ms
  max_percent: 70
`
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Workers != 6 || cfg.BatchSize != 24 {
		t.Errorf("Workers/BatchSize = %d/%d, want 6/24", cfg.Workers, cfg.BatchSize)
	}
	if !cfg.GPU || !cfg.Recursive {
		t.Error("GPU and Recursive should be true")
	}
	if cfg.OutputDir != filepath.Join(home, "converted") {
		t.Errorf("OutputDir = %q, want ~ expanded", cfg.OutputDir)
	}
	if cfg.TaskTimeout != 90*time.Second {
		t.Errorf("TaskTimeout = %v, want 90s", cfg.TaskTimeout)
	}
	if cfg.Pressure.CheckInterval != 500*time.Millisecond {
		t.Errorf("Pressure.CheckInterval = %v, want 500ms", cfg.Pressure.CheckInterval)
	}
	if len(cfg.Engine.Args) != 1 || cfg.Engine.Args[0] != "--quiet" {
		t.Errorf("Engine.Args = %v", cfg.Engine.Args)
	}
	if got, _ := cfg.MinFileSizeBytes(); got != 10*1024 {
		t.Errorf("MinFileSizeBytes() = %d, want 10240", got)
	}
	// unset sections keep their defaults
	if cfg.Monitor.Interval != DefaultMonitorInterval {
		t.Errorf("Monitor.Interval = %v, want default", cfg.Monitor.Interval)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	isolateHome(t)
	t.Setenv("DOCSWEEP_WORKERS", "3")
	t.Setenv("DOCSWEEP_ENGINE_COMMAND", "marker")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Workers)
	}
	if cfg.Engine.Command != "marker" {
		t.Errorf("Engine.Command = %q, want marker", cfg.Engine.Command)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	isolateHome(t)
	t.Setenv("DOCSWEEP_WORKERS", "-2")

	_, err := Load()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Load() error = %v, want ErrInvalidConfig", err)
	}
}

func TestLoadFrom_ExplicitFile(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("batch_size: 12\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadFrom(viper.New(), path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.BatchSize != 12 {
		t.Errorf("BatchSize = %d, want 12", cfg.BatchSize)
	}
}

func TestLoadFrom_MalformedFile(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("workers: [unclosed\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := LoadFrom(viper.New(), path); err == nil {
		t.Error("LoadFrom() should fail on malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Pattern:     "*.pdf",
			MinFileSize: "1KB",
			Engine:      EngineConfig{Command: "docling", Device: "auto"},
			Pressure:    PressureConfig{MaxPercent: 85},
			Monitor:     MonitorConfig{Enabled: true, Interval: time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "negative workers", mutate: func(c *Config) { c.Workers = -1 }, wantErr: true},
		{name: "negative batch", mutate: func(c *Config) { c.BatchSize = -4 }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.TaskTimeout = -time.Second }, wantErr: true},
		{name: "empty pattern", mutate: func(c *Config) { c.Pattern = "" }, wantErr: true},
		{name: "malformed pattern", mutate: func(c *Config) { c.Pattern = "[" }, wantErr: true},
		{name: "bad min size", mutate: func(c *Config) { c.MinFileSize = "lots" }, wantErr: true},
		{name: "empty min size", mutate: func(c *Config) { c.MinFileSize = "" }},
		{name: "unknown device", mutate: func(c *Config) { c.Engine.Device = "tpu" }, wantErr: true},
		{name: "percent above 100", mutate: func(c *Config) { c.Pressure.MaxPercent = 120 }, wantErr: true},
		{name: "monitor without interval", mutate: func(c *Config) { c.Monitor.Interval = 0 }, wantErr: true},
		{name: "negative settle", mutate: func(c *Config) { c.Watch.Settle = -time.Second }, wantErr: true},
		{name: "disabled monitor without interval", mutate: func(c *Config) {
			c.Monitor = MonitorConfig{}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error should wrap ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestWriteDefault(t *testing.T) {
	home := isolateHome(t)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != filepath.Join(home, ".config", "docsweep", "config.yaml") {
		t.Errorf("path = %q", path)
	}

	// the written file must load cleanly
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() after WriteDefault error = %v", err)
	}
	if cfg.Pattern != DefaultPattern {
		t.Errorf("Pattern = %q, want %q", cfg.Pattern, DefaultPattern)
	}

	// existing files are left alone
	if err := os.WriteFile(path, []byte("workers: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := WriteDefault(); err != nil {
		t.Fatalf("second WriteDefault() error = %v", err)
	}
	content, _ := os.ReadFile(path)
	if string(content) != "workers: 2\n" {
		t.Error("WriteDefault overwrote an existing config")
	}
}

func TestConfigDir_XDG(t *testing.T) {
	xdgHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdgHome)

	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}
	if dir != filepath.Join(xdgHome, "docsweep") {
		t.Errorf("ConfigDir() = %q", dir)
	}
}
