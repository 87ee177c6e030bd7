package hardware

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

// probeTimeout bounds every external command probe.
const probeTimeout = 5 * time.Second

// ErrNoOutput is returned when a probe command succeeds but prints nothing usable.
var ErrNoOutput = errors.New("probe produced no usable output")

// commandRunner runs an external command and returns its stdout.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).Output()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%s: %w", name, ctx.Err())
	}
	return out, err
}

func systemProbes(run commandRunner) Probes {
	return Probes{
		Cores:       probeCores,
		Memory:      probeMemory,
		Accelerator: func(ctx context.Context) (Accelerator, error) { return probeAccelerator(ctx, run) },
		CPUModel:    probeCPUModel,
	}
}

func probeCores(ctx context.Context) (int, int, error) {
	logical, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return 0, 0, fmt.Errorf("counting logical cores: %w", err)
	}
	physical, err := cpu.CountsWithContext(ctx, false)
	if err != nil {
		return 0, logical, fmt.Errorf("counting physical cores: %w", err)
	}
	return physical, logical, nil
}

func probeMemory(ctx context.Context) (int64, int64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return platformTotalMemory(err)
	}
	return int64(vm.Total), int64(vm.Available), nil
}

func probeCPUModel(ctx context.Context) (string, error) {
	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return "", err
	}
	if len(infos) == 0 {
		return "", ErrNoOutput
	}
	return strings.TrimSpace(infos[0].ModelName), nil
}

// probeAccelerator checks for a discrete NVIDIA device first, then the
// platform-specific probes. A missing tool, or one that exits non-zero
// because no device is present, means no device rather than an error.
func probeAccelerator(ctx context.Context, run commandRunner) (Accelerator, error) {
	acc, err := probeNVIDIA(ctx, run)
	if err == nil {
		return acc, nil
	}
	var exitErr *exec.ExitError
	if !errors.Is(err, exec.ErrNotFound) && !errors.As(err, &exitErr) {
		return Accelerator{Vendor: VendorNone}, err
	}
	return platformAccelerator(ctx, run)
}

func probeNVIDIA(ctx context.Context, run commandRunner) (Accelerator, error) {
	out, err := run(ctx, "nvidia-smi", "--query-gpu=name,memory.total", "--format=csv,noheader")
	if err != nil {
		return Accelerator{}, err
	}
	return parseNVIDIA(out)
}

// parseNVIDIA reads the first device from nvidia-smi CSV output such as
// "NVIDIA GeForce RTX 4090, 24564 MiB".
func parseNVIDIA(out []byte) (Accelerator, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		name, memField, ok := strings.Cut(line, ",")
		if !ok {
			return Accelerator{}, fmt.Errorf("%w: %q", ErrNoOutput, line)
		}
		acc := Accelerator{Vendor: VendorNVIDIA, Name: strings.TrimSpace(name)}

		fields := strings.Fields(memField)
		if len(fields) > 0 {
			if mib, err := strconv.ParseInt(fields[0], 10, 64); err == nil {
				acc.Memory = mib * types.MiB
			}
		}
		return acc, nil
	}
	return Accelerator{}, ErrNoOutput
}

// parseROCm reads `rocm-smi --showmeminfo vram --json` output and returns the
// VRAM of the first card.
func parseROCm(out []byte) (Accelerator, error) {
	var cards map[string]map[string]string
	if err := json.Unmarshal(out, &cards); err != nil {
		return Accelerator{}, fmt.Errorf("parsing rocm-smi output: %w", err)
	}
	if len(cards) == 0 {
		return Accelerator{}, ErrNoOutput
	}

	acc := Accelerator{Vendor: VendorAMD, Name: "AMD GPU"}
	first := ""
	for card := range cards {
		if first == "" || card < first {
			first = card
		}
	}
	for key, value := range cards[first] {
		if strings.HasPrefix(key, "VRAM Total Memory") {
			if n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
				acc.Memory = n
			}
		}
	}
	return acc, nil
}
