// Package perfmon samples CPU, memory and disk counters in the background
// while a batch runs.
package perfmon

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/jamesainslie/docsweep/pkg/docsweep/logging"
	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

// DefaultInterval is the sampling period used when none is given.
const DefaultInterval = 5 * time.Second

// ErrRunning is returned by Start when the monitor is already sampling.
var ErrRunning = errors.New("performance monitor already running")

// Reading is one raw sample. Disk counters are cumulative since boot.
type Reading struct {
	CPUPercent      float64
	MemoryAvailable int64
	MemoryUsed      int64
	MemoryPercent   float64
	DiskRead        int64
	DiskWrite       int64
}

// Sampler takes readings. SystemSampler reads the operating system.
type Sampler interface {
	Sample(ctx context.Context) (Reading, error)
}

// Snapshot is a reading relative to the start of monitoring, plus the run
// progress at the time it was taken.
type Snapshot struct {
	Timestamp       time.Time `json:"timestamp" yaml:"timestamp"`
	CPUPercent      float64   `json:"cpu_percent" yaml:"cpu_percent"`
	MemoryAvailable int64     `json:"memory_available" yaml:"memory_available"`
	MemoryUsed      int64     `json:"memory_used" yaml:"memory_used"`
	MemoryPercent   float64   `json:"memory_percent" yaml:"memory_percent"`
	DiskReadBytes   int64     `json:"disk_read_bytes" yaml:"disk_read_bytes"`
	DiskWriteBytes  int64     `json:"disk_write_bytes" yaml:"disk_write_bytes"`
	HasProgress     bool      `json:"has_progress" yaml:"has_progress"`
	Progress        float64   `json:"progress,omitempty" yaml:"progress,omitempty"`
	Message         string    `json:"message,omitempty" yaml:"message,omitempty"`
}

// Statistics summarizes the snapshots of a run.
type Statistics struct {
	Duration          time.Duration `json:"duration" yaml:"duration"`
	Samples           int           `json:"samples" yaml:"samples"`
	CPUAvg            float64       `json:"cpu_avg" yaml:"cpu_avg"`
	CPUMax            float64       `json:"cpu_max" yaml:"cpu_max"`
	MemoryAvgGiB      float64       `json:"memory_avg_gib" yaml:"memory_avg_gib"`
	MemoryMaxGiB      float64       `json:"memory_max_gib" yaml:"memory_max_gib"`
	MemoryPeakPercent float64       `json:"memory_peak_percent" yaml:"memory_peak_percent"`
	// MemoryEfficiency is average used GiB multiplied by elapsed seconds.
	MemoryEfficiency  float64       `json:"memory_efficiency" yaml:"memory_efficiency"`
	DiskReadBytes     int64         `json:"disk_read_bytes" yaml:"disk_read_bytes"`
	DiskWriteBytes    int64         `json:"disk_write_bytes" yaml:"disk_write_bytes"`
}

// Monitor runs a Sampler on a fixed interval.
type Monitor struct {
	interval time.Duration
	sampler  Sampler
	log      *logging.Logger

	mu          sync.Mutex
	snapshots   []Snapshot
	baseRead    int64
	baseWrite   int64
	haveBase    bool
	start       time.Time
	stop        time.Time
	progress    float64
	hasProgress bool
	message     string

	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Monitor. A nil sampler reads the operating system; a
// non-positive interval uses DefaultInterval.
func New(interval time.Duration, sampler Sampler) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if sampler == nil {
		sampler = &SystemSampler{}
	}
	return &Monitor{interval: interval, sampler: sampler, log: logging.Get("perfmon")}
}

// Start begins sampling. The first sample is taken immediately. Previous
// snapshots are discarded.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.done != nil {
		m.mu.Unlock()
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.snapshots = nil
	m.haveBase = false
	m.start = time.Now()
	m.stop = time.Time{}
	done := m.done
	m.mu.Unlock()

	m.log.Debug("performance monitor started", "interval", m.interval)
	go m.loop(ctx, done)
	return nil
}

// Stop ends sampling and waits for the sampler goroutine to exit. No
// snapshot is added after Stop returns. Stop on a stopped monitor is a
// no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if done == nil {
		return
	}

	cancel()
	<-done

	m.mu.Lock()
	m.cancel, m.done = nil, nil
	m.stop = time.Now()
	m.mu.Unlock()
	m.log.Debug("performance monitor stopped")
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(ctx)
		}
	}
}

func (m *Monitor) sample(ctx context.Context) {
	r, err := m.sampler.Sample(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.log.Debug("sample failed", "error", err)
		}
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	if !m.haveBase {
		m.baseRead, m.baseWrite = r.DiskRead, r.DiskWrite
		m.haveBase = true
	}
	m.snapshots = append(m.snapshots, Snapshot{
		Timestamp:       time.Now(),
		CPUPercent:      r.CPUPercent,
		MemoryAvailable: r.MemoryAvailable,
		MemoryUsed:      r.MemoryUsed,
		MemoryPercent:   r.MemoryPercent,
		DiskReadBytes:   max(r.DiskRead-m.baseRead, 0),
		DiskWriteBytes:  max(r.DiskWrite-m.baseWrite, 0),
		HasProgress:     m.hasProgress,
		Progress:        m.progress,
		Message:         m.message,
	})
}

// UpdateProgress sets the progress attached to later snapshots. Fraction is
// clamped to [0, 1].
func (m *Monitor) UpdateProgress(fraction float64, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = min(max(fraction, 0), 1)
	m.hasProgress = true
	m.message = message
}

// Snapshots returns a copy of the snapshots taken so far.
func (m *Monitor) Snapshots() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.snapshots)
}

// Latest returns the most recent snapshot.
func (m *Monitor) Latest() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.snapshots) == 0 {
		return Snapshot{}, false
	}
	return m.snapshots[len(m.snapshots)-1], true
}

// Statistics summarizes the snapshots so far. Duration runs from Start to
// Stop, or to now while sampling.
func (m *Monitor) Statistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var st Statistics
	if m.start.IsZero() {
		return st
	}
	end := m.stop
	if end.IsZero() {
		end = time.Now()
	}
	st.Duration = end.Sub(m.start)
	st.Samples = len(m.snapshots)
	if st.Samples == 0 {
		return st
	}

	var cpuSum, memSum float64
	for _, s := range m.snapshots {
		used := types.ToGiB(s.MemoryUsed)
		cpuSum += s.CPUPercent
		memSum += used
		st.CPUMax = max(st.CPUMax, s.CPUPercent)
		st.MemoryMaxGiB = max(st.MemoryMaxGiB, used)
		st.MemoryPeakPercent = max(st.MemoryPeakPercent, s.MemoryPercent)
	}
	n := float64(st.Samples)
	st.CPUAvg = cpuSum / n
	st.MemoryAvgGiB = memSum / n
	st.MemoryEfficiency = st.MemoryAvgGiB * st.Duration.Seconds()

	last := m.snapshots[len(m.snapshots)-1]
	st.DiskReadBytes = last.DiskReadBytes
	st.DiskWriteBytes = last.DiskWriteBytes
	return st
}
