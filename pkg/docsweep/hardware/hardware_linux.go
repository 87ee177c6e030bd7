//go:build linux

package hardware

import (
	"context"
	"errors"
	"os/exec"
)

// platformAccelerator probes for an AMD device through rocm-smi.
func platformAccelerator(ctx context.Context, run commandRunner) (Accelerator, error) {
	out, err := run(ctx, "rocm-smi", "--showmeminfo", "vram", "--json")
	if err != nil {
		var exitErr *exec.ExitError
		if errors.Is(err, exec.ErrNotFound) || errors.As(err, &exitErr) {
			return Accelerator{Vendor: VendorNone}, nil
		}
		return Accelerator{Vendor: VendorNone}, err
	}
	return parseROCm(out)
}

// platformTotalMemory has no fallback beyond gopsutil on linux.
func platformTotalMemory(cause error) (int64, int64, error) {
	return 0, 0, cause
}
