package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

// ErrInvalidConfig is returned when a configuration value is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// EngineConfig configures the external conversion engine.
type EngineConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
	OCR     bool     `mapstructure:"ocr"`
	Tables  bool     `mapstructure:"tables"`
	Device  string   `mapstructure:"device"`  // auto, cpu, cuda, rocm, mps
	Threads int      `mapstructure:"threads"` // 0 uses the planner's value
}

// PressureConfig configures memory pressure checks.
type PressureConfig struct {
	CheckInterval time.Duration `mapstructure:"check_interval"`
	MaxPercent    float64       `mapstructure:"max_percent"`
}

// MonitorConfig configures the performance sampler.
type MonitorConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// HistoryConfig configures run history persistence.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// WatchConfig configures the watch command.
type WatchConfig struct {
	Settle time.Duration `mapstructure:"settle"`
}

// LedgerConfig configures the conversion ledger.
type LedgerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Config represents the application configuration.
// Zero Workers or BatchSize means the value comes from the resource planner.
type Config struct {
	Workers      int            `mapstructure:"workers"`
	BatchSize    int            `mapstructure:"batch_size"`
	GPU          bool           `mapstructure:"gpu"`
	OutputDir    string         `mapstructure:"output_dir"`
	Pattern      string         `mapstructure:"pattern"`
	Recursive    bool           `mapstructure:"recursive"`
	TaskTimeout  time.Duration  `mapstructure:"task_timeout"`
	SkipExisting bool           `mapstructure:"skip_existing"`
	MinFileSize  string         `mapstructure:"min_file_size"`
	Engine       EngineConfig   `mapstructure:"engine"`
	Pressure     PressureConfig `mapstructure:"pressure"`
	Monitor      MonitorConfig  `mapstructure:"monitor"`
	History      HistoryConfig  `mapstructure:"history"`
	Ledger       LedgerConfig   `mapstructure:"ledger"`
	Watch        WatchConfig    `mapstructure:"watch"`
	Logging      LoggingConfig  `mapstructure:"logging"`
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("workers", 0)
	v.SetDefault("batch_size", 0)
	v.SetDefault("gpu", false)
	v.SetDefault("output_dir", DefaultOutputDir)
	v.SetDefault("pattern", DefaultPattern)
	v.SetDefault("recursive", false)
	v.SetDefault("task_timeout", time.Duration(0))
	v.SetDefault("skip_existing", false)
	v.SetDefault("min_file_size", DefaultMinFileSize)

	v.SetDefault("engine.command", DefaultEngineCommand)
	v.SetDefault("engine.args", []string{})
	v.SetDefault("engine.ocr", true)
	v.SetDefault("engine.tables", true)
	v.SetDefault("engine.device", DefaultDevice)
	v.SetDefault("engine.threads", 0)

	v.SetDefault("pressure.check_interval", DefaultPressureInterval)
	v.SetDefault("pressure.max_percent", DefaultMaxMemoryPercent)

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.interval", DefaultMonitorInterval)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", HistoryDir())
	v.SetDefault("history.retention_days", DefaultRetentionDays)

	v.SetDefault("ledger.enabled", true)
	v.SetDefault("ledger.path", DefaultLedgerPath())

	v.SetDefault("watch.settle", DefaultWatchSettle)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means use logging.DefaultLogPath
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.components", map[string]string{
		"batch":    "info",
		"hardware": "info",
		"pressure": "info",
		"queue":    "warn",
		"engine":   "info",
		"tui":      "info",
		"watcher":  "info",
	})
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/docsweep/config.yaml
//   - $HOME/.config/docsweep/config.yaml
//
// Environment variables are prefixed with DOCSWEEP_ (e.g., DOCSWEEP_WORKERS).
func Load() (*Config, error) {
	return LoadFrom(viper.New(), "")
}

// LoadFrom loads configuration into v, which may already carry bound flags.
// A non-empty cfgFile replaces the search path.
func LoadFrom(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, "docsweep"))
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		v.AddConfigPath(filepath.Join(homeDir, ".config", "docsweep"))
	}

	v.SetEnvPrefix("DOCSWEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for _, p := range []*string{&cfg.OutputDir, &cfg.History.Path, &cfg.Ledger.Path, &cfg.Logging.Path} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects out-of-range values before any work is queued.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	}
	if c.TaskTimeout < 0 {
		return fmt.Errorf("%w: task_timeout cannot be negative", ErrInvalidConfig)
	}
	if c.Pattern == "" {
		return fmt.Errorf("%w: pattern is empty", ErrInvalidConfig)
	}
	if _, err := filepath.Match(c.Pattern, ""); err != nil {
		return fmt.Errorf("%w: pattern %q: %v", ErrInvalidConfig, c.Pattern, err)
	}
	if _, err := c.MinFileSizeBytes(); err != nil {
		return fmt.Errorf("%w: min_file_size: %v", ErrInvalidConfig, err)
	}
	if c.Engine.Command == "" {
		return fmt.Errorf("%w: engine.command is empty", ErrInvalidConfig)
	}
	if c.Engine.Threads < 0 {
		return fmt.Errorf("%w: engine.threads cannot be negative", ErrInvalidConfig)
	}
	switch c.Engine.Device {
	case "", "auto", "cpu", "cuda", "rocm", "mps":
	default:
		return fmt.Errorf("%w: unknown engine.device %q", ErrInvalidConfig, c.Engine.Device)
	}
	if c.Pressure.MaxPercent <= 0 || c.Pressure.MaxPercent > 100 {
		return fmt.Errorf("%w: pressure.max_percent must be in (0, 100]", ErrInvalidConfig)
	}
	if c.Monitor.Enabled && c.Monitor.Interval <= 0 {
		return fmt.Errorf("%w: monitor.interval must be positive", ErrInvalidConfig)
	}
	if c.Watch.Settle < 0 {
		return fmt.Errorf("%w: watch.settle cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// MinFileSizeBytes parses MinFileSize. An empty value means no minimum.
func (c *Config) MinFileSizeBytes() (int64, error) {
	if strings.TrimSpace(c.MinFileSize) == "" {
		return 0, nil
	}
	return types.ParseSize(c.MinFileSize)
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "docsweep"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "docsweep"), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// WriteDefault writes a default config file if none exists and returns its
// path. An existing file is left untouched.
func WriteDefault() (string, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	content := fmt.Sprintf(`# docsweep configuration

# Worker and batch overrides (0 = derive from detected hardware)
workers: 0
batch_size: 0

# Use an accelerator when one is detected
gpu: false

# Discovery and output
output_dir: %s
pattern: "%s"
recursive: false
skip_existing: false
# Sources smaller than this are skipped
min_file_size: %s

# Per-document time limit (0 = none), e.g. 10m
task_timeout: 0

# Conversion engine
engine:
  command: %s
  args: []
  ocr: true
  tables: true
  # auto, cpu, cuda, rocm, mps
  device: %s
  # 0 = use the planner's thread count
  threads: 0

# Memory pressure checks between dispatches
pressure:
  check_interval: %s
  max_percent: %.0f

# Performance sampling during runs
monitor:
  enabled: true
  interval: %s

# Run history
history:
  enabled: true
  path: %s
  retention_days: %d

# Skip sources unchanged since their last successful conversion
ledger:
  enabled: true
  path: %s

# Watch mode: files must be quiet this long before conversion
watch:
  settle: %s

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means $XDG_STATE_HOME/docsweep/docsweep.log)
  path: ""
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
  components:
    batch: info
    hardware: info
    pressure: info
    queue: warn
    engine: info
    tui: info
    watcher: info
`, DefaultOutputDir, DefaultPattern, DefaultMinFileSize, DefaultEngineCommand, DefaultDevice,
		DefaultPressureInterval, DefaultMaxMemoryPercent, DefaultMonitorInterval,
		HistoryDir(), DefaultRetentionDays, DefaultLedgerPath(), DefaultWatchSettle)

	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}
	return configPath, nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/docsweep/ for the ledger and run history.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "docsweep")
}

// HistoryDir returns the default run history directory.
func HistoryDir() string {
	return filepath.Join(DataDir(), "history")
}

// DefaultLedgerPath returns the default ledger database directory.
func DefaultLedgerPath() string {
	return filepath.Join(DataDir(), "ledger")
}
