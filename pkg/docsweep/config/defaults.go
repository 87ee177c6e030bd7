// Package config provides configuration management for docsweep.
package config

import "time"

// Default configuration values for docsweep.
const (
	// DefaultPattern is the glob used when discovering documents in a directory.
	DefaultPattern = "*.pdf"

	// DefaultOutputDir is where converted documents are written.
	DefaultOutputDir = "./output"

	// DefaultMinFileSize is the smallest source file worth sending to the engine.
	DefaultMinFileSize = "1KB"

	// DefaultEngineCommand is the converter binary invoked per document.
	DefaultEngineCommand = "docling"

	// DefaultDevice lets the planner pick the accelerator device.
	DefaultDevice = "auto"

	// DefaultPressureInterval is the minimum spacing between pressure checks.
	DefaultPressureInterval = 2 * time.Second

	// DefaultMaxMemoryPercent is the used-memory limit for Check.
	DefaultMaxMemoryPercent = 85.0

	// DefaultMonitorInterval is the performance sampling period.
	DefaultMonitorInterval = 5 * time.Second

	// DefaultRetentionDays is how long run history is kept.
	DefaultRetentionDays = 30

	// DefaultWatchSettle is how long a watched file must stay unchanged
	// before it is converted.
	DefaultWatchSettle = 2 * time.Second
)
