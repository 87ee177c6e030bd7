//go:build darwin

package hardware

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// platformAccelerator reports Apple silicon as an integrated accelerator
// sharing system memory.
func platformAccelerator(_ context.Context, _ commandRunner) (Accelerator, error) {
	brand, err := unix.Sysctl("machdep.cpu.brand_string")
	if err != nil {
		return Accelerator{Vendor: VendorNone}, fmt.Errorf("sysctl machdep.cpu.brand_string: %w", err)
	}
	if !strings.Contains(brand, "Apple") {
		return Accelerator{Vendor: VendorNone}, nil
	}
	return Accelerator{Vendor: VendorIntegrated, Name: strings.TrimSpace(brand)}, nil
}

// platformTotalMemory reads hw.memsize when gopsutil fails. Available memory
// is estimated at half of total.
func platformTotalMemory(cause error) (int64, int64, error) {
	memsize, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return 0, 0, fmt.Errorf("%w (sysctl hw.memsize: %v)", cause, err)
	}
	total := int64(memsize)
	return total, total / 2, nil
}
