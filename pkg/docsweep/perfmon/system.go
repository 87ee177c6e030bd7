package perfmon

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// SystemSampler reads host counters with gopsutil. CPU percent is measured
// between consecutive calls, so the first reading is relative to boot.
type SystemSampler struct{}

// Sample implements Sampler.
func (s *SystemSampler) Sample(ctx context.Context) (Reading, error) {
	var r Reading

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return r, fmt.Errorf("reading memory: %w", err)
	}
	r.MemoryAvailable = int64(vm.Available)
	r.MemoryUsed = int64(vm.Used)
	r.MemoryPercent = vm.UsedPercent

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		r.CPUPercent = pct[0]
	}

	// disk counters are unavailable in some containers
	if counters, err := disk.IOCountersWithContext(ctx); err == nil {
		for _, c := range counters {
			r.DiskRead += int64(c.ReadBytes)
			r.DiskWrite += int64(c.WriteBytes)
		}
	}
	return r, nil
}
