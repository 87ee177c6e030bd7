//go:build !linux && !darwin

package hardware

import "context"

func platformAccelerator(_ context.Context, _ commandRunner) (Accelerator, error) {
	return Accelerator{Vendor: VendorNone}, nil
}

func platformTotalMemory(cause error) (int64, int64, error) {
	return 0, 0, cause
}
