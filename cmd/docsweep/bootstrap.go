package main

import (
	"fmt"

	"github.com/jamesainslie/docsweep/pkg/docsweep/config"
	"github.com/jamesainslie/docsweep/pkg/docsweep/logging"
	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

// initLogging configures logging from the loaded config. Console output goes
// to stderr at warn level (debug with --verbose) and is disabled in quiet and
// TUI modes, where the terminal belongs to the interface.
func initLogging(tuiMode bool) error {
	if err := logging.Init(loggingConfig(appCfg, tuiMode, getQuiet(), getVerbose())); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	return nil
}

func loggingConfig(cfg *config.Config, tuiMode, quiet, verbose bool) logging.Config {
	lc := logging.DefaultConfig()
	if cfg != nil {
		lc.Level = cfg.Logging.Level
		if cfg.Logging.Path != "" {
			lc.Path = cfg.Logging.Path
		}
		lc.Rotation = parseRotationConfig(cfg.Logging.Rotation)
		lc.Components = cfg.Logging.Components
	}

	switch {
	case tuiMode || quiet:
		lc.Quiet = true
	case verbose:
		lc.ConsoleLevel = "debug"
	default:
		lc.ConsoleLevel = "warn"
	}
	return lc
}

// parseRotationConfig converts the config file's rotation settings. An empty
// or invalid max_size keeps the default.
func parseRotationConfig(rc config.RotationConfig) logging.RotationConfig {
	out := logging.DefaultRotationConfig()
	if size, err := types.ParseSize(rc.MaxSize); err == nil && size > 0 {
		out.MaxSize = size
	}
	out.MaxAge = rc.MaxAge
	out.MaxBackups = rc.MaxBackups
	return out
}
