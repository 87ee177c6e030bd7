package output

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

// PrettyFormatter renders a styled report for terminals.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Report) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")
	w.WriteString(f.formatTable(r))
	if len(r.Skipped) > 0 {
		w.WriteString("\n")
		w.WriteString(f.formatSkipped(r.Skipped))
	}
	w.WriteString(f.formatFooter(r))
	w.WriteString("\n")

	if len(r.Warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(f.formatWarnings(r.Warnings))
	}
	return nil
}

func (f *PrettyFormatter) formatHeader(r *Report) string {
	var lines []string

	if r.Source != "" {
		lines = append(lines, label("Source:")+" "+ValueStyle.Render(r.Source))
	}
	if r.OutputDir != "" {
		lines = append(lines, label("Output:")+" "+ValueStyle.Render(r.OutputDir))
	}

	var plan []string
	if r.Plan.Workers > 0 {
		plan = append(plan, label("Workers:")+" "+ValueStyle.Render(strconv.Itoa(r.Plan.Workers)))
	}
	if r.Plan.BatchSize > 0 {
		plan = append(plan, label("Batch:")+" "+ValueStyle.Render(
			fmt.Sprintf("%d/%d", r.Plan.BatchSize, r.Plan.TableBatchSize)))
	}
	if r.Device != "" {
		plan = append(plan, label("Device:")+" "+ValueStyle.Render(r.Device))
	}
	if len(plan) > 0 {
		lines = append(lines, strings.Join(plan, "  "))
	}
	if r.RunID != "" {
		lines = append(lines, label("Run:")+" "+MutedStyle.Render(r.RunID))
	}
	if r.Interrupted {
		lines = append(lines, WarningStyle.Bold(true).Render("Run interrupted; remaining documents were skipped"))
	}
	if len(lines) == 0 {
		lines = append(lines, TitleStyle.Render("docsweep"))
	}
	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatTable(r *Report) string {
	if len(r.Results) == 0 {
		return MutedStyle.Render("  No documents converted") + "\n"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "  %s  %s  %s  %s  %s\n",
		TableHeaderStyle.Render(padRight("STATUS", 6)),
		TableHeaderStyle.Render(padLeft("PAGES", 5)),
		TableHeaderStyle.Render(padLeft("IMAGES", 6)),
		TableHeaderStyle.Render(padLeft("TIME", 8)),
		TableHeaderStyle.Render("SOURCE"))

	for _, res := range r.Results {
		st := SuccessStyle.Render(padRight(status(res), 6))
		if !res.Success {
			st = ErrorStyle.Render(padRight(status(res), 6))
		}
		fmt.Fprintf(&sb, "  %s  %s  %s  %s  %s\n",
			st,
			CountStyle.Render(padLeft(strconv.Itoa(res.PagesConverted), 5)),
			CountStyle.Render(padLeft(strconv.Itoa(res.ImagesExtracted), 6)),
			MutedStyle.Render(padLeft(formatDuration(res.Duration), 8)),
			PathStyle.Render(filepath.Base(res.SourcePath)))
		if !res.Success {
			sb.WriteString(ErrorStyle.Render("          " + res.Error))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func (f *PrettyFormatter) formatSkipped(skipped []Skipped) string {
	var sb strings.Builder
	sb.WriteString(WarningStyle.Bold(true).Render(fmt.Sprintf("Skipped (%d):", len(skipped))))
	sb.WriteString("\n")
	for _, s := range skipped {
		sb.WriteString("  ")
		sb.WriteString(PathStyle.Render(filepath.Base(s.SourcePath)))
		sb.WriteString(" ")
		sb.WriteString(MutedStyle.Render(s.Reason))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (f *PrettyFormatter) formatFooter(r *Report) string {
	s := r.Summary
	parts := []string{
		label("Converted:") + " " + SuccessStyle.Render(fmt.Sprintf("%d/%d", s.Successful, s.Total)),
	}
	if s.Failed > 0 {
		parts = append(parts, label("Failed:")+" "+ErrorStyle.Render(strconv.Itoa(s.Failed)))
	}
	if len(r.Skipped) > 0 {
		parts = append(parts, label("Skipped:")+" "+WarningStyle.Render(strconv.Itoa(len(r.Skipped))))
	}
	parts = append(parts,
		label("Pages:")+" "+CountStyle.Render(strconv.Itoa(s.TotalPages)),
		label("Images:")+" "+CountStyle.Render(strconv.Itoa(s.TotalImages)))
	if r.Elapsed > 0 {
		parts = append(parts, label("Elapsed:")+" "+ValueStyle.Render(formatDuration(r.Elapsed)))
	}

	lines := []string{strings.Join(parts, "  ")}
	if p := r.Performance; p != nil && p.Samples > 0 {
		lines = append(lines, MutedStyle.Render(fmt.Sprintf(
			"CPU avg %.0f%% max %.0f%%  Memory avg %.1f GiB max %.1f GiB  Disk read %s write %s",
			p.CPUAvg, p.CPUMax, p.MemoryAvgGiB, p.MemoryMaxGiB,
			types.FormatSize(p.DiskReadBytes), types.FormatSize(p.DiskWriteBytes))))
	}
	lines = append(lines, MutedStyle.Render("Use -o plain for unformatted output"))
	return FooterBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatWarnings(warnings []string) string {
	var sb strings.Builder
	sb.WriteString(WarningStyle.Bold(true).Render("Warnings:"))
	sb.WriteString("\n")
	for _, warning := range warnings {
		sb.WriteString(WarningStyle.Render("  " + warning))
		sb.WriteString("\n")
	}
	return sb.String()
}

func label(s string) string {
	return LabelStyle.Render(s)
}

func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

var _ Formatter = (*PrettyFormatter)(nil)
