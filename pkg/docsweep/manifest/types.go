// Package manifest keeps a history of conversion runs on the filesystem.
package manifest

import (
	"time"

	"github.com/jamesainslie/docsweep/pkg/docsweep/perfmon"
	"github.com/jamesainslie/docsweep/pkg/docsweep/tuner"
	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

// RunKind is the command that produced a run.
type RunKind string

const (
	// KindConvert is a run over explicit files.
	KindConvert RunKind = "convert"
	// KindBatch is a run over a discovered directory.
	KindBatch RunKind = "batch"
	// KindWatch is a run triggered by the directory watcher.
	KindWatch RunKind = "watch"
)

// Run is one persisted conversion run.
type Run struct {
	ID          string               `json:"id"`
	Kind        RunKind              `json:"kind"`
	StartedAt   time.Time            `json:"started_at"`
	FinishedAt  time.Time            `json:"finished_at"`
	Source      string               `json:"source,omitempty"`
	OutputDir   string               `json:"output_dir,omitempty"`
	Plan        tuner.ResourceConfig `json:"plan"`
	Device      string               `json:"device,omitempty"`
	Results     []types.Result       `json:"results"`
	Skipped     []SkipRecord         `json:"skipped,omitempty"`
	Summary     types.Summary        `json:"summary"`
	Performance *perfmon.Statistics  `json:"performance,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// SkipRecord is a task that never reached the converter.
type SkipRecord struct {
	SourcePath string `json:"source_path"`
	Reason     string `json:"reason"`
}

// Elapsed returns the wall-clock duration of the run.
func (r *Run) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
