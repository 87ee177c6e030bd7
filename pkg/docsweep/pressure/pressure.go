// Package pressure classifies live memory pressure and recommends how far to
// scale back in-flight work. Recommendations are advisory; the batch
// coordinator polls them between dispatches.
package pressure

import (
	"context"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/jamesainslie/docsweep/pkg/docsweep/logging"
	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

// Level is an ordinal memory pressure classification.
type Level int

// Pressure levels from least to most severe.
const (
	Low Level = iota
	Medium
	High
	Critical
)

// String returns the lowercase level name.
func (l Level) String() string {
	switch l {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Classification thresholds.
const (
	criticalPercent   = 90.0
	criticalAvailable = 2 * types.GiB
	highPercent       = 75.0
	highAvailable     = 4 * types.GiB
	mediumPercent     = 60.0
)

// MemoryStats is a point-in-time memory reading.
type MemoryStats struct {
	Total       int64
	Available   int64
	Used        int64
	UsedPercent float64

	// ProcessRSS is the resident set of this process and its direct
	// children, which include running engine processes. Zero if unknown.
	ProcessRSS int64
}

// MemoryReader reads current memory statistics.
type MemoryReader interface {
	ReadMemory(ctx context.Context) (MemoryStats, error)
}

// SystemReader reads memory statistics from the operating system.
type SystemReader struct{}

// ReadMemory implements MemoryReader.
func (SystemReader) ReadMemory(ctx context.Context) (MemoryStats, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryStats{}, fmt.Errorf("reading virtual memory: %w", err)
	}
	stats := MemoryStats{
		Total:       int64(vm.Total),
		Available:   int64(vm.Available),
		Used:        int64(vm.Used),
		UsedPercent: vm.UsedPercent,
	}

	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		stats.ProcessRSS = residentSet(ctx, proc)
		if children, err := proc.ChildrenWithContext(ctx); err == nil {
			for _, child := range children {
				stats.ProcessRSS += residentSet(ctx, child)
			}
		}
	}
	return stats, nil
}

func residentSet(ctx context.Context, proc *process.Process) int64 {
	info, err := proc.MemoryInfoWithContext(ctx)
	if err != nil || info == nil {
		return 0
	}
	return int64(info.RSS)
}

// Classify maps a memory reading to a pressure level: critical above 90%
// used or below 2 GiB available, high above 75% or below 4 GiB, medium
// above 60%, low otherwise.
func Classify(stats MemoryStats) Level {
	switch {
	case stats.UsedPercent > criticalPercent || stats.Available < criticalAvailable:
		return Critical
	case stats.UsedPercent > highPercent || stats.Available < highAvailable:
		return High
	case stats.UsedPercent > mediumPercent:
		return Medium
	default:
		return Low
	}
}

// RecommendBatchSize scales batch for level: a quarter (at least 1) when
// critical, half (at least 2) when high, unchanged otherwise. The result
// never exceeds batch.
func RecommendBatchSize(level Level, batch int) int {
	if batch < 1 {
		return 1
	}
	switch level {
	case Critical:
		return max(batch/4, 1)
	case High:
		return min(batch, max(batch/2, 2))
	default:
		return batch
	}
}

// ThrottleWorkers scales the in-flight limit for level: one when critical,
// half (at least 1) when high, unchanged otherwise.
func ThrottleWorkers(level Level, workers int) int {
	if workers < 1 {
		return 1
	}
	switch level {
	case Critical:
		return 1
	case High:
		return max(workers/2, 1)
	default:
		return workers
	}
}

// Options configures a Monitor.
type Options struct {
	// MaxPercent is the used-memory percentage Check treats as over the limit.
	MaxPercent float64

	// MaxProcessMemory is the resident set Check treats as over the limit.
	// Zero disables the process check.
	MaxProcessMemory int64
}

// DefaultOptions returns the default limits.
func DefaultOptions() Options {
	return Options{MaxPercent: 85}
}

// Monitor polls a MemoryReader and classifies the result.
type Monitor struct {
	reader MemoryReader
	opts   Options
	log    *logging.Logger
}

// NewMonitor returns a Monitor reading from reader. A nil reader reads from
// the operating system.
func NewMonitor(reader MemoryReader, opts Options) *Monitor {
	if reader == nil {
		reader = SystemReader{}
	}
	if opts.MaxPercent <= 0 || opts.MaxPercent > 100 {
		opts.MaxPercent = DefaultOptions().MaxPercent
	}
	return &Monitor{
		reader: reader,
		opts:   opts,
		log:    logging.Get("pressure"),
	}
}

// Current returns the current pressure level.
func (m *Monitor) Current(ctx context.Context) (Level, error) {
	status, err := m.Status(ctx)
	return status.Level, err
}

// Status is one memory reading with its classification.
type Status struct {
	Stats        MemoryStats
	Level        Level
	WithinLimits bool
}

// Status classifies a single memory reading and checks it against the
// configured limits without logging.
func (m *Monitor) Status(ctx context.Context) (Status, error) {
	stats, err := m.reader.ReadMemory(ctx)
	if err != nil {
		return Status{Level: Low, WithinLimits: true}, err
	}
	return Status{
		Stats:        stats,
		Level:        Classify(stats),
		WithinLimits: m.within(stats),
	}, nil
}

func (m *Monitor) within(stats MemoryStats) bool {
	if stats.UsedPercent >= m.opts.MaxPercent {
		return false
	}
	return m.opts.MaxProcessMemory <= 0 || stats.ProcessRSS < m.opts.MaxProcessMemory
}

// Check reports whether memory use is within the configured limits and logs
// a warning when it is not.
func (m *Monitor) Check(ctx context.Context) (bool, error) {
	status, err := m.Status(ctx)
	if err != nil || status.WithinLimits {
		return true, err
	}

	stats := status.Stats
	if stats.UsedPercent >= m.opts.MaxPercent {
		m.log.Warn("system memory over limit",
			"used_percent", fmt.Sprintf("%.1f", stats.UsedPercent),
			"limit_percent", m.opts.MaxPercent)
	} else {
		m.log.Warn("process memory over limit",
			"rss", types.FormatSize(stats.ProcessRSS),
			"limit", types.FormatSize(m.opts.MaxProcessMemory))
	}
	return false, nil
}
