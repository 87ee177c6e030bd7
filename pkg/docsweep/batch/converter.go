package batch

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/jamesainslie/docsweep/pkg/docsweep/config"
	"github.com/jamesainslie/docsweep/pkg/docsweep/tuner"
	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

// ProgressFunc receives in-document progress from a Converter. Fraction is
// in [0, 1].
type ProgressFunc func(fraction float64, message string)

// Converter converts one document into outputDir.
//
// A returned error or a Result with Success false marks the task failed.
// Implementations may be called from several goroutines at once. If a
// Converter also implements io.Closer it is closed when the run ends.
type Converter interface {
	Convert(ctx context.Context, source, outputDir string, progress ProgressFunc) (*types.Result, error)
}

// EngineConfig is handed to the ConverterFactory once per run.
type EngineConfig struct {
	Command        string
	Args           []string
	OCR            bool
	Tables         bool
	Device         string
	Threads        int
	BatchSize      int
	TableBatchSize int
	ChunkSize      int
	MemoryCeiling  int64
}

// ConverterFactory builds the Converter for a run. An error aborts the run
// before any task is dispatched.
type ConverterFactory func(EngineConfig) (Converter, error)

// NewEngineConfig merges user engine settings with a resource plan. An
// explicit thread count in cfg wins over the plan.
func NewEngineConfig(cfg config.EngineConfig, plan tuner.ResourceConfig, device string, chunk int) EngineConfig {
	threads := plan.AcceleratorThreads
	if cfg.Threads > 0 {
		threads = cfg.Threads
	}
	return EngineConfig{
		Command:        cfg.Command,
		Args:           cfg.Args,
		OCR:            cfg.OCR,
		Tables:         cfg.Tables,
		Device:         device,
		Threads:        threads,
		BatchSize:      plan.BatchSize,
		TableBatchSize: plan.TableBatchSize,
		ChunkSize:      chunk,
		MemoryCeiling:  plan.MemoryCeiling,
	}
}

// Ledger remembers successful conversions so unchanged sources can be
// skipped on later runs.
type Ledger interface {
	Unchanged(source string) (bool, error)
	Record(result types.Result) error
}

// ProgressCallback is called once per finished task, from a single
// goroutine, with the number of finished tasks and the run total.
type ProgressCallback func(completed, total int, message string)

// Progress describes one finished task. Completed and Failed are running
// counts, so a consumer that drops an update still sees correct totals on
// the next one.
type Progress struct {
	Completed int
	Failed    int
	Total     int
	Result    types.Result
	Message   string
}

// ResultCallback is the structured form of ProgressCallback.
type ResultCallback func(Progress)

// OutputDirFor returns the directory a source converts into:
// <base>/<stem>_md. An empty base uses the source's own directory.
func OutputDirFor(base, source string) string {
	if base == "" {
		base = filepath.Dir(source)
	}
	return filepath.Join(base, stem(source)+"_md")
}

// MarkdownPath returns the primary output file inside dir.
func MarkdownPath(dir, source string) string {
	return filepath.Join(dir, stem(source)+".md")
}

func stem(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
