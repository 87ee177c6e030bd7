// Package hardware detects the host capabilities that bound how much
// conversion work can run at once: CPU cores, system memory, and the
// presence of an accelerator.
//
// Detection never fails. Each probe that cannot answer degrades to a
// documented default and logs a warning.
package hardware

import (
	"context"
	"runtime"
	"sync"

	"github.com/jamesainslie/docsweep/pkg/docsweep/logging"
	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

// Vendor identifies the accelerator family.
type Vendor string

// Accelerator vendors.
const (
	VendorNone       Vendor = "none"
	VendorNVIDIA     Vendor = "nvidia"
	VendorAMD        Vendor = "amd"
	VendorIntegrated Vendor = "integrated"
)

// Defaults used when a probe cannot answer.
const (
	// DefaultTotalMemory is assumed when memory detection fails.
	DefaultTotalMemory = 8 * types.GiB

	// DefaultCores is assumed when core detection fails and the runtime
	// reports nothing usable.
	DefaultCores = 1
)

// Profile is an immutable snapshot of host capabilities.
type Profile struct {
	PhysicalCores int `json:"physical_cores" yaml:"physical_cores"`
	LogicalCores  int `json:"logical_cores" yaml:"logical_cores"`

	TotalMemory     int64 `json:"total_memory" yaml:"total_memory"`
	AvailableMemory int64 `json:"available_memory" yaml:"available_memory"`

	Accelerator       Vendor `json:"accelerator" yaml:"accelerator"`
	AcceleratorName   string `json:"accelerator_name,omitempty" yaml:"accelerator_name,omitempty"`
	AcceleratorMemory int64  `json:"accelerator_memory" yaml:"accelerator_memory"` // 0 = unknown

	CPUModel string `json:"cpu_model,omitempty" yaml:"cpu_model,omitempty"`
	Platform string `json:"platform" yaml:"platform"`
	Arch     string `json:"arch" yaml:"arch"`
}

// HasAccelerator reports whether any accelerator was detected.
func (p Profile) HasAccelerator() bool {
	return p.Accelerator != "" && p.Accelerator != VendorNone
}

// TotalGiB returns total memory in GiB.
func (p Profile) TotalGiB() float64 { return types.ToGiB(p.TotalMemory) }

// AvailableGiB returns available memory in GiB.
func (p Profile) AvailableGiB() float64 { return types.ToGiB(p.AvailableMemory) }

// Accelerator describes a detected accelerator.
type Accelerator struct {
	Vendor Vendor
	Name   string
	Memory int64
}

// Probes are the individual detection steps. Nil fields use the system probes.
type Probes struct {
	Cores       func(ctx context.Context) (physical, logical int, err error)
	Memory      func(ctx context.Context) (total, available int64, err error)
	Accelerator func(ctx context.Context) (Accelerator, error)
	CPUModel    func(ctx context.Context) (string, error)
}

// Profiler detects the host profile once and returns the memoized result
// for its lifetime.
type Profiler struct {
	probes Probes

	once    sync.Once
	profile Profile
}

// NewProfiler returns a Profiler using the system probes.
func NewProfiler() *Profiler {
	return NewProfilerWithProbes(Probes{})
}

// NewProfilerWithProbes returns a Profiler with the given probes.
func NewProfilerWithProbes(probes Probes) *Profiler {
	sys := systemProbes(execRunner)
	if probes.Cores == nil {
		probes.Cores = sys.Cores
	}
	if probes.Memory == nil {
		probes.Memory = sys.Memory
	}
	if probes.Accelerator == nil {
		probes.Accelerator = sys.Accelerator
	}
	if probes.CPUModel == nil {
		probes.CPUModel = sys.CPUModel
	}
	return &Profiler{probes: probes}
}

// Detect returns the host profile. The first call runs the probes; later
// calls return the same value.
func (p *Profiler) Detect(ctx context.Context) Profile {
	p.once.Do(func() {
		p.profile = p.detect(ctx)
	})
	return p.profile
}

func (p *Profiler) detect(ctx context.Context) Profile {
	log := logging.Get("hardware")

	prof := Profile{
		Accelerator: VendorNone,
		Platform:    runtime.GOOS,
		Arch:        runtime.GOARCH,
	}

	physical, logical, err := p.probes.Cores(ctx)
	if err != nil {
		log.Warn("core detection failed, using runtime count", "error", err)
	}
	if logical < 1 {
		logical = max(runtime.NumCPU(), DefaultCores)
	}
	if physical < 1 {
		physical = logical
	}
	prof.PhysicalCores = physical
	prof.LogicalCores = max(logical, physical)

	total, available, err := p.probes.Memory(ctx)
	if err != nil || total <= 0 {
		log.Warn("memory detection failed, assuming defaults",
			"error", err, "total", types.FormatSize(DefaultTotalMemory))
		total = DefaultTotalMemory
		available = total / 2
	}
	if available <= 0 {
		available = total / 2
	}
	prof.TotalMemory = total
	prof.AvailableMemory = min(available, total)

	acc, err := p.probes.Accelerator(ctx)
	if err != nil {
		log.Warn("accelerator detection failed, assuming none", "error", err)
	} else if acc.Vendor != "" {
		prof.Accelerator = acc.Vendor
		prof.AcceleratorName = acc.Name
		prof.AcceleratorMemory = max(acc.Memory, 0)
	}

	model, err := p.probes.CPUModel(ctx)
	if err != nil {
		log.Debug("cpu model unavailable", "error", err)
	}
	prof.CPUModel = model

	log.Info("detected hardware",
		"physical_cores", prof.PhysicalCores,
		"logical_cores", prof.LogicalCores,
		"total_memory", types.FormatSize(prof.TotalMemory),
		"available_memory", types.FormatSize(prof.AvailableMemory),
		"accelerator", prof.Accelerator,
		"accelerator_memory", types.FormatSize(prof.AcceleratorMemory),
	)
	return prof
}
