// Package output renders batch reports in several formats (pretty, plain,
// json, yaml, tsv, csv, template).
//
// Formatters are registered by name and selected at runtime:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, report); err != nil {
//	    return err
//	}
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/docsweep/pkg/docsweep/manifest"
	"github.com/jamesainslie/docsweep/pkg/docsweep/perfmon"
	"github.com/jamesainslie/docsweep/pkg/docsweep/tuner"
	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

// Skipped is a task that was not converted.
type Skipped struct {
	SourcePath string `json:"source_path" yaml:"source_path"`
	Reason     string `json:"reason" yaml:"reason"`
}

// Report is everything a formatter can show about one run.
type Report struct {
	// RunID identifies the run in history. Empty when history is disabled.
	RunID string

	// Source is the directory or file list description the run covered.
	Source string

	// OutputDir is the base output directory.
	OutputDir string

	// Device is the accelerator device the engine used.
	Device string

	// Plan is the resource configuration the run used.
	Plan tuner.ResourceConfig

	// Results holds one entry per converted task in completion order.
	Results []types.Result

	// Skipped lists tasks that never reached the converter.
	Skipped []Skipped

	// Summary aggregates Results.
	Summary types.Summary

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration

	// Performance is set when the performance monitor ran.
	Performance *perfmon.Statistics

	// Interrupted reports whether the run was cancelled.
	Interrupted bool

	// Warnings are run-level warnings.
	Warnings []string
}

// NewReport builds a report and computes its summary.
func NewReport(results []types.Result, skipped []Skipped) *Report {
	return &Report{
		Results: results,
		Skipped: skipped,
		Summary: types.Summarize(results),
	}
}

// FromRun converts a history entry into a report.
func FromRun(run *manifest.Run) *Report {
	skipped := make([]Skipped, len(run.Skipped))
	for i, s := range run.Skipped {
		skipped[i] = Skipped{SourcePath: s.SourcePath, Reason: s.Reason}
	}
	r := NewReport(run.Results, skipped)
	r.RunID = run.ID
	r.Source = run.Source
	r.OutputDir = run.OutputDir
	r.Device = run.Device
	r.Plan = run.Plan
	r.Elapsed = run.Elapsed()
	r.Performance = run.Performance
	if run.Error != "" {
		r.Warnings = append(r.Warnings, run.Error)
	}
	return r
}

// Formatter renders a report.
type Formatter interface {
	Format(w *bytes.Buffer, r *Report) error
}

// FormatterFactory creates a Formatter.
type FormatterFactory func() Formatter

// Registry maps names to formatter factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]FormatterFactory)}
}

// Register adds or replaces a formatter.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns the sorted formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds the built-in formatters.
var DefaultRegistry = NewRegistry()

// Register adds a formatter to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a formatter from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns the default registry's formatter names.
func Available() []string {
	return DefaultRegistry.Available()
}

// status returns the short status word for a result.
func status(r types.Result) string {
	if r.Success {
		return "ok"
	}
	return "failed"
}

// formatDuration formats a duration for humans.
func formatDuration(d time.Duration) string {
	sec := d.Seconds()
	if sec < 1 {
		return fmt.Sprintf("%.0fms", sec*1000)
	}
	if sec < 60 {
		return fmt.Sprintf("%.1fs", sec)
	}
	minutes := int(sec) / 60
	seconds := int(sec) % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

// formatDurationString formats a duration for machine-readable output.
func formatDurationString(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}
