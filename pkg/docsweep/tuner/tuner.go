package tuner

import (
	"fmt"

	"github.com/jamesainslie/docsweep/pkg/docsweep/config"
	"github.com/jamesainslie/docsweep/pkg/docsweep/hardware"
	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

// Worker and batch limits.
const (
	// MaxWorkers caps concurrent conversions regardless of hardware.
	MaxWorkers = 16

	// MaxBatchSize caps the engine batch size.
	MaxBatchSize = 128

	// minBatchSize is the batch floor on hosts with at least 16 GiB.
	minBatchSize = 8

	// minBatchSizeSmall is the batch floor below 16 GiB.
	minBatchSizeSmall = 4

	// minTableBatchSize is the table batch floor.
	minTableBatchSize = 2

	// memoryCeilingFraction reserves 30% for the OS and the engine's own
	// working set.
	memoryCeilingFraction = 0.70

	// largeHostCeilingFloor is the minimum ceiling on hosts with 64 GiB or more.
	largeHostCeilingFloor = 8 * types.GiB
)

// Plan derives a ResourceConfig from profile.
//
// The calculation:
//   - Workers: physical cores scaled by a memory tier (x1.5 at 64 GiB,
//     x1.0 at 32 GiB, x0.75 at 16 GiB, x0.5 below), then x1.2 when an
//     accelerator is present on a host with at least 32 GiB; clamped to [1, 16].
//   - Batch: the smallest of available GiB x 1.5, workers x 2, physical
//     cores x 2 and a tier ceiling (16/32/48/64), floored at 8 (4 below
//     16 GiB). With gpuEnabled and an accelerator, at least 48 (64 at 64 GiB).
//   - Table batch: max(batch/4, 2).
//   - Memory ceiling: 70% of total memory.
func Plan(profile hardware.Profile, gpuEnabled bool) ResourceConfig {
	workers := planWorkers(profile)
	batch := planBatch(profile, workers, gpuEnabled)

	return ResourceConfig{
		Workers:            workers,
		BatchSize:          batch,
		TableBatchSize:     tableBatch(batch),
		AcceleratorThreads: max(profile.LogicalCores, profile.PhysicalCores, 1),
		MemoryCeiling:      memoryCeiling(profile.TotalMemory),
	}
}

// PlanWithOverrides applies explicit worker and batch choices on top of Plan.
// Overrides are still capped at MaxWorkers and MaxBatchSize. Negative
// overrides are rejected with config.ErrInvalidConfig.
func PlanWithOverrides(profile hardware.Profile, gpuEnabled bool, o Overrides) (ResourceConfig, error) {
	if o.Workers < 0 {
		return ResourceConfig{}, fmt.Errorf("%w: workers override must be positive, got %d", config.ErrInvalidConfig, o.Workers)
	}
	if o.BatchSize < 0 {
		return ResourceConfig{}, fmt.Errorf("%w: batch size override must be positive, got %d", config.ErrInvalidConfig, o.BatchSize)
	}

	rc := Plan(profile, gpuEnabled)
	if o.Workers > 0 {
		rc.Workers = min(o.Workers, MaxWorkers)
	}
	if o.BatchSize > 0 {
		rc.BatchSize = min(o.BatchSize, MaxBatchSize)
		rc.TableBatchSize = tableBatch(rc.BatchSize)
	}
	return rc, nil
}

func planWorkers(profile hardware.Profile) int {
	physical := max(profile.PhysicalCores, 1)
	totalGiB := profile.TotalGiB()

	var multiplier float64
	switch {
	case totalGiB >= 64:
		multiplier = 1.5
	case totalGiB >= 32:
		multiplier = 1.0
	case totalGiB >= 16:
		multiplier = 0.75
	default:
		multiplier = 0.5
	}

	workers := int(float64(physical) * multiplier)
	if profile.HasAccelerator() && totalGiB >= 32 {
		workers = int(float64(workers) * 1.2)
	}
	return clamp(workers, 1, MaxWorkers)
}

func planBatch(profile hardware.Profile, workers int, gpuEnabled bool) int {
	totalGiB := profile.TotalGiB()
	physical := max(profile.PhysicalCores, 1)

	batch := min(
		int(profile.AvailableGiB()*1.5),
		workers*2,
		physical*2,
		tierCeiling(totalGiB),
	)

	floor := minBatchSize
	if totalGiB < 16 {
		floor = minBatchSizeSmall
	}
	batch = max(batch, floor)

	if gpuEnabled && profile.HasAccelerator() {
		accel := 48
		if totalGiB >= 64 {
			accel = 64
		}
		batch = max(batch, accel)
	}
	return min(batch, MaxBatchSize)
}

func tierCeiling(totalGiB float64) int {
	switch {
	case totalGiB >= 96:
		return 64
	case totalGiB >= 64:
		return 48
	case totalGiB >= 32:
		return 32
	default:
		return 16
	}
}

func tableBatch(batch int) int {
	return max(batch/4, minTableBatchSize)
}

func memoryCeiling(total int64) int64 {
	if total <= 0 {
		return 0
	}
	ceiling := int64(float64(total) * memoryCeilingFraction)
	if total >= 64*types.GiB {
		ceiling = max(ceiling, largeHostCeilingFloor)
	}
	return ceiling
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// RecommendDevice returns the engine device name for profile: cuda for
// NVIDIA, rocm for AMD, mps for integrated accelerators on darwin, and cpu
// otherwise or when gpuEnabled is false.
func RecommendDevice(profile hardware.Profile, gpuEnabled bool) string {
	if !gpuEnabled {
		return "cpu"
	}
	switch profile.Accelerator {
	case hardware.VendorNVIDIA:
		return "cuda"
	case hardware.VendorAMD:
		return "rocm"
	case hardware.VendorIntegrated:
		if profile.Platform == "darwin" {
			return "mps"
		}
	}
	return "cpu"
}

// RecommendChunkSize returns how many pages the engine should process per
// chunk: 20 at 64 GiB, 10 at 32 GiB, 5 at 16 GiB, and 3 below.
func RecommendChunkSize(profile hardware.Profile) int {
	totalGiB := profile.TotalGiB()
	switch {
	case totalGiB >= 64:
		return 20
	case totalGiB >= 32:
		return 10
	case totalGiB >= 16:
		return 5
	default:
		return 3
	}
}
