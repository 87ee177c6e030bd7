package batch

import (
	"fmt"
	"time"

	"github.com/jamesainslie/docsweep/pkg/docsweep/config"
	"github.com/jamesainslie/docsweep/pkg/docsweep/pressure"
	"github.com/jamesainslie/docsweep/pkg/docsweep/tuner"
)

// Options configures a Processor.
type Options struct {
	// Workers is the maximum number of tasks in flight.
	Workers int

	// Engine is passed to Factory once per run.
	Engine EngineConfig

	// Factory builds the converter for a run.
	Factory ConverterFactory

	// OutputDir is the base output directory for tasks without their own.
	// Empty writes next to each source.
	OutputDir string

	// TaskTimeout fails a task that runs longer. Zero disables the watchdog.
	TaskTimeout time.Duration

	// SkipExisting skips sources whose markdown output already exists.
	SkipExisting bool

	// MinFileSize skips sources smaller than this many bytes.
	MinFileSize int64

	// Pressure, when set, lowers the in-flight limit under memory pressure.
	Pressure *pressure.Monitor

	// PressureInterval is the minimum time between pressure checks.
	PressureInterval time.Duration

	// Ledger, when set, skips unchanged sources and records successes.
	Ledger Ledger
}

// OptionsFor returns options sized by a resource plan.
func OptionsFor(plan tuner.ResourceConfig, engine EngineConfig, factory ConverterFactory) Options {
	return Options{
		Workers:          plan.Workers,
		Engine:           engine,
		Factory:          factory,
		PressureInterval: config.DefaultPressureInterval,
	}
}

// Validate rejects unusable options and fills in defaults.
func (o *Options) Validate() error {
	if o.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", config.ErrInvalidConfig, o.Workers)
	}
	if o.Factory == nil {
		return fmt.Errorf("%w: converter factory is required", config.ErrInvalidConfig)
	}
	if o.TaskTimeout < 0 {
		return fmt.Errorf("%w: task timeout cannot be negative", config.ErrInvalidConfig)
	}
	if o.MinFileSize < 0 {
		return fmt.Errorf("%w: min file size cannot be negative", config.ErrInvalidConfig)
	}
	if o.PressureInterval <= 0 {
		o.PressureInterval = config.DefaultPressureInterval
	}
	return nil
}
