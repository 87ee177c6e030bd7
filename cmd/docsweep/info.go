package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/docsweep/pkg/docsweep/hardware"
	"github.com/jamesainslie/docsweep/pkg/docsweep/output"
	"github.com/jamesainslie/docsweep/pkg/docsweep/pressure"
	"github.com/jamesainslie/docsweep/pkg/docsweep/tuner"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show detected hardware, resource plan and memory pressure",
	Long: `Display the hardware profile docsweep detects, the worker and batch plan it
derives from it (after config and flag overrides), and the current memory
pressure with the adjustments it would cause.`,
	Args: cobra.NoArgs,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

// systemInfo is the machine-readable form of the info command.
type systemInfo struct {
	Hardware hardware.Profile     `json:"hardware" yaml:"hardware"`
	Plan     tuner.ResourceConfig `json:"plan" yaml:"plan"`
	Device   string               `json:"device" yaml:"device"`
	Chunk    int                  `json:"chunk_size" yaml:"chunk_size"`
	Memory   *memoryInfo          `json:"memory,omitempty" yaml:"memory,omitempty"`
}

type memoryInfo struct {
	Total           int64   `json:"total" yaml:"total"`
	Available       int64   `json:"available" yaml:"available"`
	UsedPercent     float64 `json:"used_percent" yaml:"used_percent"`
	Pressure        string  `json:"pressure" yaml:"pressure"`
	WithinLimit     bool    `json:"within_limit" yaml:"within_limit"`
	AdjustedWorkers int     `json:"adjusted_workers" yaml:"adjusted_workers"`
	AdjustedBatch   int     `json:"adjusted_batch" yaml:"adjusted_batch"`
}

func runInfo(_ *cobra.Command, _ []string) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	res, err := planResources(ctx, cfg)
	if err != nil {
		return err
	}

	si := systemInfo{
		Hardware: res.Profile,
		Plan:     res.Plan,
		Device:   res.Device,
		Chunk:    res.Chunk,
	}

	mon := pressure.NewMonitor(nil, pressure.Options{
		MaxPercent:       cfg.Pressure.MaxPercent,
		MaxProcessMemory: res.Plan.MemoryCeiling,
	})
	if status, err := mon.Status(ctx); err != nil {
		printVerbose("Failed to read memory: %v", err)
	} else {
		stats, level := status.Stats, status.Level
		si.Memory = &memoryInfo{
			Total:           stats.Total,
			Available:       stats.Available,
			UsedPercent:     stats.UsedPercent,
			Pressure:        level.String(),
			WithinLimit:     status.WithinLimits,
			AdjustedWorkers: pressure.ThrottleWorkers(level, res.Plan.Workers),
			AdjustedBatch:   pressure.RecommendBatchSize(level, res.Plan.BatchSize),
		}
	}

	switch format := outputFormat(); format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(si)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(si)
	case "pretty", "plain":
		fmt.Print(renderInfo(si, format == "pretty"))
		return nil
	default:
		return fmt.Errorf("unsupported output format %q for info: use pretty, plain, json or yaml", format)
	}
}

// renderInfo lays out systemInfo as labelled sections.
func renderInfo(si systemInfo, styled bool) string {
	plain := func(s string) string { return s }
	label, value, title := plain, plain, plain
	if styled {
		label = func(s string) string { return output.LabelStyle.Render(s) }
		value = func(s string) string { return output.ValueStyle.Render(s) }
		title = func(s string) string { return output.TitleStyle.Render(s) }
	}
	row := func(b *strings.Builder, k, v string) {
		fmt.Fprintf(b, "  %s %s\n", label(fmt.Sprintf("%-18s", k+":")), value(v))
	}

	var b strings.Builder
	h := si.Hardware
	b.WriteString(title("Hardware") + "\n")
	row(&b, "Platform", h.Platform+"/"+h.Arch)
	if h.CPUModel != "" {
		row(&b, "CPU", h.CPUModel)
	}
	row(&b, "Cores", fmt.Sprintf("%d physical, %d logical", h.PhysicalCores, h.LogicalCores))
	row(&b, "Memory", fmt.Sprintf("%s total, %s available",
		humanize.IBytes(uint64(h.TotalMemory)), humanize.IBytes(uint64(h.AvailableMemory))))
	accel := string(h.Accelerator)
	if h.AcceleratorName != "" {
		accel += " (" + h.AcceleratorName + ")"
	}
	if h.AcceleratorMemory > 0 {
		accel += ", " + humanize.IBytes(uint64(h.AcceleratorMemory))
	}
	row(&b, "Accelerator", accel)

	p := si.Plan
	b.WriteString("\n" + title("Plan") + "\n")
	row(&b, "Workers", strconv.Itoa(p.Workers))
	row(&b, "Batch size", fmt.Sprintf("%d (tables %d)", p.BatchSize, p.TableBatchSize))
	row(&b, "Engine threads", strconv.Itoa(p.AcceleratorThreads))
	row(&b, "Memory ceiling", humanize.IBytes(uint64(p.MemoryCeiling)))
	row(&b, "Device", si.Device)
	row(&b, "Chunk size", fmt.Sprintf("%d pages", si.Chunk))

	if m := si.Memory; m != nil {
		b.WriteString("\n" + title("Memory pressure") + "\n")
		row(&b, "Used", fmt.Sprintf("%.1f%% of %s", m.UsedPercent, humanize.IBytes(uint64(m.Total))))
		level := m.Pressure
		if styled {
			level = pressureStyle(m.Pressure).Render(level)
		}
		fmt.Fprintf(&b, "  %s %s\n", label(fmt.Sprintf("%-18s", "Level:")), level)
		row(&b, "Within limit", strconv.FormatBool(m.WithinLimit))
		row(&b, "Adjusted plan", fmt.Sprintf("%d workers, batch %d", m.AdjustedWorkers, m.AdjustedBatch))
	}
	return b.String()
}

func pressureStyle(level string) lipgloss.Style {
	switch level {
	case "critical", "high":
		return output.ErrorStyle
	case "medium":
		return output.WarningStyle
	default:
		return output.SuccessStyle
	}
}
