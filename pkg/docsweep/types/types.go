// Package types provides shared data types for the docsweep batch converter.
// It includes the conversion result and summary structures exchanged between
// the scheduler and its callers, along with helpers for parsing and
// formatting byte sizes.
package types

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Size constants for binary (IEC) units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
	TiB int64 = 1024 * GiB
)

// Result is the outcome of converting one source document.
// One Result is produced per dispatched task.
type Result struct {
	// TaskID identifies the task that produced this result.
	TaskID string `json:"task_id" yaml:"task_id"`

	// Success reports whether the conversion engine produced output.
	Success bool `json:"success" yaml:"success"`

	// SourcePath is the document that was converted.
	SourcePath string `json:"source_path" yaml:"source_path"`

	// OutputPath is the primary output file. Empty on failure.
	OutputPath string `json:"output_path,omitempty" yaml:"output_path,omitempty"`

	// PagesConverted is the number of pages the engine emitted.
	PagesConverted int `json:"pages_converted" yaml:"pages_converted"`

	// TotalPages is the number of pages in the source document.
	TotalPages int `json:"total_pages" yaml:"total_pages"`

	// ImagesExtracted is the number of images written alongside the output.
	ImagesExtracted int `json:"images_extracted" yaml:"images_extracted"`

	// Duration is the time spent inside the conversion engine.
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Error is the failure message. Empty on success.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	// Warnings are non-fatal messages reported by the engine.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`

	// CompletedAt is when the result was recorded.
	CompletedAt time.Time `json:"completed_at" yaml:"completed_at"`
}

// Failed builds a failed result for a source path.
func Failed(taskID, source string, duration time.Duration, err error) *Result {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &Result{
		TaskID:      taskID,
		Success:     false,
		SourcePath:  source,
		Duration:    duration,
		Error:       msg,
		CompletedAt: time.Now(),
	}
}

// Summary aggregates a set of results.
type Summary struct {
	Total       int           `json:"total" yaml:"total"`
	Successful  int           `json:"successful" yaml:"successful"`
	Failed      int           `json:"failed" yaml:"failed"`
	TotalPages  int           `json:"total_pages" yaml:"total_pages"`
	TotalImages int           `json:"total_images" yaml:"total_images"`
	Duration    time.Duration `json:"total_duration" yaml:"total_duration"`
}

// Summarize computes aggregate statistics over results.
// Pages and images count successful results only; Duration is the sum of
// per-task durations, not wall-clock time.
func Summarize(results []Result) Summary {
	var s Summary
	s.Total = len(results)
	for _, r := range results {
		s.Duration += r.Duration
		if !r.Success {
			s.Failed++
			continue
		}
		s.Successful++
		s.TotalPages += r.PagesConverted
		s.TotalImages += r.ImagesExtracted
	}
	return s
}

// sizePattern matches size strings like "100M", "2G", "500K", "1.5GB", etc.
var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([KMGT]?(?:i?B)?)\s*$`)

// ErrInvalidSize indicates that the size string could not be parsed.
var ErrInvalidSize = errors.New("invalid size format")

// ErrNegativeSize indicates that a negative size value was provided.
var ErrNegativeSize = errors.New("size cannot be negative")

// ParseSize parses a human-readable size string ("512K", "2GiB", "1024")
// and returns the size in bytes. Decimal values are truncated to the nearest
// byte.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSize)
	}
	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeSize
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	suffix := strings.ToUpper(matches[2])
	suffix = strings.TrimSuffix(suffix, "IB")
	suffix = strings.TrimSuffix(suffix, "B")

	var multiplier int64
	switch suffix {
	case "":
		multiplier = 1
	case "K":
		multiplier = KiB
	case "M":
		multiplier = MiB
	case "G":
		multiplier = GiB
	case "T":
		multiplier = TiB
	default:
		return 0, fmt.Errorf("%w: unknown suffix %q", ErrInvalidSize, suffix)
	}

	return int64(value * float64(multiplier)), nil
}

// FormatSize converts a size in bytes to a human-readable IEC string.
// Negative values are formatted as zero.
func FormatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// ToGiB converts bytes to fractional gibibytes.
func ToGiB(bytes int64) float64 {
	return float64(bytes) / float64(GiB)
}
